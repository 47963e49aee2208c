// Package agent contains the event handlers that drive the outreach
// workflow. Each agent owns a slice of the provider lifecycle:
//
//   - CampaignAgent seeds sessions when a campaign is requested
//   - CommunicationAgent drafts and sends every outbound message
//   - ScreeningAgent interprets replies and document results
//   - NotifyAgent turns screening verdicts into terminal statuses and
//     confirmation or rejection messages
//
// Agents share one idempotency discipline: they guard on the session's
// expected next event, route every status change through the transition
// engine and treat a superseded transition as someone else having already
// done the work.
package agent
