// Package engine applies status transitions to provider sessions. It is the
// only code path that writes session state, enforcing the state machine's
// allowed transitions and the optimistic-concurrency contract in one place.
package engine
