// Package catalog defines the event contract of the outreach system: the
// envelope that wraps every event, the trace context that rides with it, and
// the typed payload for each detail-type.
//
// The catalog is the single gate between the transport and the handlers. An
// envelope that fails validation is rejected before any state is touched, so
// handlers can assume well-formed payloads and the store never records the
// effects of a malformed event.
package catalog
