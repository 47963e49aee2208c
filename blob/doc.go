// Package blob stores document bytes outside the event pipeline. Events and
// sessions carry refs only; the bytes live behind the Store interface.
package blob
