// Package config loads the runner configuration file.
//
// The file is YAML. Before it is decoded into Go types it is checked
// against the embedded CUE schema (schema.cue), so structural mistakes
// are reported with the file position that caused them. Checks CUE cannot
// express (unique names, channel type names, radar geometry) run after
// decoding.
//
// The radar block is optional; fields it omits keep the radar.Default
// values. The resulting radar.Config is immutable and is handed to the
// codec and stages explicitly.
package config
