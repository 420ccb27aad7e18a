// Package analysis ingests per-crate compiler analysis records into a
// cross-reference index and answers definition, reference and hierarchy
// queries over it.
package analysis

import (
	"strconv"
)

// DefID identifies a definition across every crate of one build:
// the 8 high bits are the global crate id, the 24 low bits the crate-local index.
type DefID uint32

// NullID marks an id that could not be resolved. The compiler uses the same
// value for missing crate or index fields.
const NullID DefID = 0xFFFFFFFF

const (
	nullRaw   = uint32(0xFFFFFFFF)
	localMask = 0x00FFFFFF
)

// MakeDefID packs a global crate id and a crate-local index.
func MakeDefID(crate uint8, index uint32) DefID {
	return DefID(uint32(crate)<<24 | index&localMask)
}

// Crate returns the global crate id.
func (id DefID) Crate() uint8 { return uint8(uint32(id) >> 24) }

// Local returns the crate-local index.
func (id DefID) Local() uint32 { return uint32(id) & localMask }

func (id DefID) String() string { return strconv.FormatUint(uint64(id), 10) }

// MarshalText renders ids as decimal strings so they survive JSON clients
// that treat numbers as float64.
func (id DefID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *DefID) UnmarshalText(b []byte) error {
	v, err := ParseDefID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// ParseDefID parses the decimal form produced by String.
func ParseDefID(s string) (DefID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return NullID, err
	}
	return DefID(v), nil
}

// CompilerID is a definition id as the compiler emits it, relative to the
// crate being compiled: Krate 0 is the crate itself, other numbers index its
// external crate list.
type CompilerID struct {
	Krate uint32 `json:"krate"`
	Index uint32 `json:"index"`
}

// IsNull reports whether either half is the null sentinel.
func (c CompilerID) IsNull() bool {
	return c.Krate == nullRaw || c.Index == nullRaw
}
