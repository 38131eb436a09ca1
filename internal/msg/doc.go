// Package msg implements the versioned binary envelope shared by every
// message kind in sidecar.
//
// An encoded message is laid out as:
//
//	[u16 typeKey][u16 payloadVersion][header][payload]
//	header = [u16 headerVersion][GUID][createdAt][emittedAt]
//	GUID   = [u16 guidVersion][string producer][u16 typeKey][u32 sequence]
//
// All integers are big-endian. Strings are a u32 byte length followed by
// UTF-8 bytes. Timestamps are an i64 Unix second count followed by a u32
// nanosecond count.
//
// VERSIONING:
//
// Every versioned section (GUID, header, each payload kind) owns a Versions
// table mapping small positive integers to decode functions. Tables are
// populated once at process start. Encode always writes the highest
// registered version; Decode looks the version tag up and fails with
// UNKNOWN_SCHEMA_VERSION when it is missing. Legacy decoders never leave a
// field unset: anything an old layout lacks gets a defined default.
//
// CRITICAL PATTERNS:
//
// CP-1: emittedAt is written once
// Encode stamps EmittedAt with the codec clock only when it is zero, so a
// recorded message replayed through the codec keeps its original value.
//
// CP-2: Decode never panics
// Every read goes through Reader, which turns short buffers and oversized
// length fields into DECODE_ERROR values carrying ErrTruncated or
// ErrMalformed.
//
// CP-3: Text shares binary semantics
// EncodeText/DecodeText produce a YAML diagnostic document whose payload
// section is rendered by the payload type itself. Angles are degrees in
// text and radians in memory.
package msg
