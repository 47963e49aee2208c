// Package store persists the outreach system's state: sessions, campaigns,
// conversation threads, the event audit log, async job correlations and dead
// letters.
//
// Two implementations ship with the module. Memory keeps everything in maps
// guarded by a mutex and backs tests and local experiments. Gorm persists to
// SQLite through GORM and is the production default.
//
// Both honor the same contracts: session updates are conditioned on the
// caller's expected version and fail with core.StaleVersionError when the row
// moved underneath them, thread sequence numbers are gap-free per thread, and
// job correlations are consumed at most once.
package store
