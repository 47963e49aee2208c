// Package sweep finds sessions that have gone quiet and nudges them with
// follow-up events. Each rule pairs a (status, expected event) index key with
// a dormancy threshold and a follow-up reason; the sweeper queries the
// dormant index per rule, derives the follow-up number from the elapsed time
// and publishes FollowUpTriggered for every hit still inside the follow-up
// budget.
//
// The sweep never writes session state itself. The follow-up handler owns
// the LastActivityAt refresh, so a crashed sweep is at worst repeated, never
// half-applied.
package sweep
