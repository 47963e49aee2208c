// Package mail is the boundary between the outreach system and its email
// channel. Outbound messages go through the Mailer interface; inbound
// messages are matched to their session via the reply address codec and
// converted into ProviderResponseReceived envelopes.
//
// The Memory mailer backs tests and local runs. Production deployments plug
// in their delivery provider behind the same interface.
package mail
