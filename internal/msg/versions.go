package msg

import (
	"fmt"
	"maps"
	"slices"
)

// Versions maps version numbers to the function that reads that layout.
//
// A Versions table is populated once during process start and read-only
// afterwards, so lookups take no lock. Version 0 is never valid: the zero
// value of a missing tag must not decode.
type Versions[F any] struct {
	section   string
	byVersion map[uint16]F
	current   uint16
}

// NewVersions creates an empty table for the named section.
func NewVersions[F any](section string) *Versions[F] {
	return &Versions[F]{
		section:   section,
		byVersion: make(map[uint16]F),
	}
}

// Add registers fn for version. Registering version 0 or a version that is
// already present fails with DUPLICATE_VERSION and leaves the table unchanged.
func (v *Versions[F]) Add(version uint16, fn F) error {
	if version == 0 {
		return &CodecError{
			Code:    ErrCodeDuplicateVersion,
			Message: "version 0 is reserved",
			Section: v.section,
		}
	}
	if _, exists := v.byVersion[version]; exists {
		return &CodecError{
			Code:    ErrCodeDuplicateVersion,
			Message: fmt.Sprintf("version %d already registered", version),
			Section: v.section,
			Version: version,
		}
	}
	v.byVersion[version] = fn
	if version > v.current {
		v.current = version
	}
	return nil
}

// MustAdd is Add for package-level tables built from literals. It panics
// on a registration error, which can only be a programming mistake.
func (v *Versions[F]) MustAdd(version uint16, fn F) *Versions[F] {
	if err := v.Add(version, fn); err != nil {
		panic(err)
	}
	return v
}

// Current returns the highest registered version, or 0 for an empty table.
func (v *Versions[F]) Current() uint16 { return v.current }

// Section returns the name given to NewVersions.
func (v *Versions[F]) Section() string { return v.section }

// Lookup returns the function for version or an UNKNOWN_SCHEMA_VERSION error.
func (v *Versions[F]) Lookup(version uint16) (F, error) {
	fn, ok := v.byVersion[version]
	if !ok {
		var zero F
		return zero, NewUnknownVersionError(v.section, version)
	}
	return fn, nil
}

// Known returns the registered versions in ascending order.
func (v *Versions[F]) Known() []uint16 {
	return slices.Sorted(maps.Keys(v.byVersion))
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
