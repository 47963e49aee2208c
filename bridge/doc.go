// Package bridge joins asynchronous document analysis jobs back to the
// sessions that started them. Submission is idempotent under a caller-chosen
// token, so a redelivered event reuses the in-flight job instead of paying
// for a second analysis. Completion consumes the correlation exactly once;
// duplicate completion signals find nothing and fade out without a second
// DocumentProcessed event.
package bridge
