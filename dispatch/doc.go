// Package dispatch routes validated envelopes to their handlers and
// classifies handler outcomes for the delivery layer: nil and superseded
// results count as success, fatal errors go straight to the dead-letter
// path, everything else is retried within the bus's attempt budget.
package dispatch
