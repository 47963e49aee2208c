// Package bus is the in-process event transport. It delivers envelopes to
// the dispatcher with at-least-once semantics: retryable failures are
// redelivered with backoff up to an attempt budget, fatal failures and
// exhausted deliveries land in the dead-letter store with their envelope
// preserved for replay.
//
// The bus implements catalog.Publisher, so handlers publishing follow-on
// events never know whether they are talking to this transport or an
// external broker.
package bus
