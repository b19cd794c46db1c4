package vm

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// SnapshotVersion is the current snapshot format.
const SnapshotVersion = 1

// Snapshot is the complete machine state: memory, both stacks and ip.
// Memory is stored up to the last non-zero cell; MemorySize records the
// full capacity.
type Snapshot struct {
	Version    int    `cbor:"1,keyasint"`
	IP         Cell   `cbor:"2,keyasint"`
	Data       []Cell `cbor:"3,keyasint"`
	Address    []Cell `cbor:"4,keyasint"`
	MemorySize int    `cbor:"5,keyasint"`
	Memory     []Cell `cbor:"6,keyasint"`
	NameOffset int    `cbor:"7,keyasint"`
}

var snapshotEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	snapshotEncMode = em
}

// Snapshot captures the current machine state.
func (vm *VM) Snapshot() *Snapshot {
	used := len(vm.mem)
	for used > 0 && vm.mem[used-1] == 0 {
		used--
	}
	mem := make([]Cell, used)
	copy(mem, vm.mem[:used])
	return &Snapshot{
		Version:    SnapshotVersion,
		IP:         vm.ip,
		Data:       vm.data.Values(),
		Address:    vm.address.Values(),
		MemorySize: len(vm.mem),
		Memory:     mem,
		NameOffset: vm.dict.NameOffset(),
	}
}

// Restore replaces the machine state with s. Memory is resized to the
// snapshot's capacity.
func (vm *VM) Restore(s *Snapshot) error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("%w: version %d", ErrSnapshotFormat, s.Version)
	}
	if len(s.Memory) > s.MemorySize {
		return fmt.Errorf("%w: %d cells stored for a memory of %d", ErrSnapshotFormat, len(s.Memory), s.MemorySize)
	}
	mem := NewMemory(s.MemorySize)
	copy(mem, s.Memory)
	dict, err := NewDictionary(mem, s.NameOffset)
	if err != nil {
		return err
	}

	vm.mem = mem
	vm.dict = dict
	vm.nameOffset = s.NameOffset
	vm.ip = s.IP
	vm.data.replace(append([]Cell(nil), s.Data...))
	vm.address.replace(append([]Cell(nil), s.Address...))
	vm.Refresh()
	return nil
}

// MarshalSnapshot serializes a Snapshot to CBOR bytes.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return snapshotEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("vm: unmarshal snapshot: %w", err)
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: version %d", ErrSnapshotFormat, s.Version)
	}
	return &s, nil
}

// WriteSnapshot writes the current machine state to path.
func (vm *VM) WriteSnapshot(path string) error {
	data, err := MarshalSnapshot(vm.Snapshot())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot reads a snapshot file.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return UnmarshalSnapshot(data)
}
