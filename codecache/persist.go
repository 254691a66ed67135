package codecache

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/kestreljs/kestrel/vm"
)

// ---------------------------------------------------------------------------
// Persisted compiled units
// ---------------------------------------------------------------------------

// cborEncMode uses canonical encoding for deterministic persisted units.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codecache: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ErrCorruptUnit indicates stored bytes that do not decode as a
// persisted unit or violate its structural invariants.
var ErrCorruptUnit = errors.New("codecache: corrupt persisted unit")

// PersistedUnit is the serializable record allowing generated code to be
// reloaded without recompiling its source. It is produced once per
// successful compilation when persistence is enabled and may be
// installed many times across process runs, each time re-binding the
// constant pool's function placeholders to freshly constructed function
// objects.
type PersistedUnit struct {
	CompilationID string                     `cbor:"id"`
	MainUnit      string                     `cbor:"main"`
	Code          map[string][]byte          `cbor:"code"`
	Entries       map[int]vm.EntryDescriptor `cbor:"entries"`
	Pool          []vm.Constant              `cbor:"pool"`
}

// Validate checks the record's structural invariants: the main unit name
// keys the code map and every entry descriptor references a present
// unit.
func (u *PersistedUnit) Validate() error {
	if u.MainUnit == "" {
		return fmt.Errorf("%w: empty main unit name", ErrCorruptUnit)
	}
	if _, ok := u.Code[u.MainUnit]; !ok {
		return fmt.Errorf("%w: main unit %q not in code map", ErrCorruptUnit, u.MainUnit)
	}
	for id, entry := range u.Entries {
		if _, ok := u.Code[entry.UnitName]; !ok {
			return fmt.Errorf("%w: entry %d references missing unit %q", ErrCorruptUnit, id, entry.UnitName)
		}
	}
	return nil
}

// Marshal serializes the unit to CBOR bytes.
func (u *PersistedUnit) Marshal() ([]byte, error) {
	return cborEncMode.Marshal(u)
}

// UnmarshalPersistedUnit deserializes and validates a persisted unit.
func UnmarshalPersistedUnit(data []byte) (*PersistedUnit, error) {
	var u PersistedUnit
	if err := cbor.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptUnit, err)
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return &u, nil
}
