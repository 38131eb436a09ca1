// Package payload implements the typed message kinds carried inside the
// msg envelope and registers their version histories with a msg.Codec.
//
// Kinds:
//   - TSPI: an external position report with four coincident coordinate
//     views (EFG, LLH, RAE, XYZ). Also decodable from the legacy 20-byte
//     transducer frame (DecodeFrame).
//   - PRI[T]: one radar pulse: an RIU descriptor plus samples. The element
//     type is fixed by the type key (Video int16, BinaryVideo bool, Complex
//     I/Q int16 pairs, RawVideo int32).
//   - Extractions: an ordered plot list with a tag.
//
// Every kind has a YAML text form used for diagnostics. Angles are degrees
// in text and radians in memory.
//
// CRITICAL: legacy RIU layouts (v1-v3) do not carry every descriptor field.
// Missing range scaling comes from the radar.Config passed to Register, and
// synthesized sequence counters are owned by the registered schema, so two
// codecs never share counter state.
package payload
