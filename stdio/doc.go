// Package stdio implements the byte-level and correlation layers of the
// bridge's subprocess transport.
//
// The Framer owns newline-delimited JSON framing over the subprocess's
// standard streams: writes are serialized so concurrent requests never
// interleave, and decoded inbound messages are fanned out to subscribers. A
// malformed line is reported and skipped without terminating the stream.
//
// The Correlator turns the asynchronous message stream into a synchronous
// Call primitive: it assigns a fresh id per request, parks the caller on a
// pending slot and resolves that slot exactly once - by matching response,
// by deadline, or by drain when the process generation dies. Both types are
// scoped to a single subprocess generation; the supervisor creates fresh
// instances on every respawn.
package stdio
