// Package chat streams chat completions from several vendor APIs
// behind one Adapter. Each vendor contributes request construction,
// stream-line parsing, and error decoding; the adapter owns the HTTP
// round trip, the 403 mapping, and delivery of parsed chunks.
//
// Adapters never retry. A request is either answered by the stream or
// fails with a vendor-decoded error; callers decide what to do next.
package chat
