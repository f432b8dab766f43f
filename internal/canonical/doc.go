// Package canonical produces a deterministic JSON serialization used for
// content-addressed fingerprinting of execution records.
//
// Rules:
//   - Object keys sorted bytewise (UTF-8 code point order)
//   - Compact separators, no extraneous whitespace
//   - No HTML escaping (< > & are NOT escaped)
//   - Strings NFC normalized at the serialization boundary
//
// Unlike strict RFC 8785, null and finite floats are admitted: execution
// metadata routinely carries absent optional fields and metric samples.
// NaN and infinities are rejected because JSON cannot represent them.
//
// Two content-equal values always serialize to identical bytes regardless
// of map insertion order. Everything hashed in this module goes through
// Marshal; nothing else may be used for identity computation.
package canonical
