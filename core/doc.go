// Package core provides the foundational domain types shared by every layer
// of the outreach system. It defines:
//
//   - ProviderStatus (the recruitment state machine and its allowed transitions)
//   - Session (one provider's progress through one campaign)
//   - Campaign (the requirements snapshot and aggregate status)
//   - ThreadMessage (append-only conversation log entries)
//   - The error taxonomy used for retry/fatal classification
//
// The package intentionally keeps implementation concerns (persistence, event
// transport, handler logic) out of scope; it has no dependencies beyond the
// standard library so every other package can import it freely.
package core
