package carve

import (
	"encoding/binary"

	cerrors "github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/fbestack/raidmem/memutils"
	"github.com/fbestack/raidmem/memutils/guard"
	"github.com/fbestack/raidmem/memutils/sizing"
)

// SGEntry is one fragment of a scatter/gather list
type SGEntry struct {
	Address uint64
	Count   uint32
}

// SGList is a typed view over a carved scatter/gather list. The terminator entry that follows the
// usable entries is not reachable through the view.
type SGList struct {
	structure guard.Structure
}

func (l SGList) Class() sizing.SizeClass {
	return l.structure.Class
}

// Structure returns the carved structure backing this list
func (l SGList) Structure() guard.Structure {
	return l.structure
}

// Len returns the number of usable entries, not counting the terminator
func (l SGList) Len() int {
	return l.structure.Class.SGEntries() - 1
}

func (l SGList) entry(index int) ([]byte, error) {
	if index < 0 || index >= l.Len() {
		return nil, cerrors.Wrapf(memutils.ValidationError, "entry %d is outside %s, which has %d entries",
			redact.Safe(index), l.structure.Class, redact.Safe(l.Len()))
	}

	offset := index * sizing.SGEntrySize
	return l.structure.Payload()[offset : offset+sizing.SGEntrySize], nil
}

func (l SGList) Set(index int, entry SGEntry) error {
	raw, err := l.entry(index)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint64(raw[0:8], entry.Address)
	binary.LittleEndian.PutUint32(raw[8:12], entry.Count)
	binary.LittleEndian.PutUint32(raw[12:16], 0)
	return nil
}

func (l SGList) Get(index int) (SGEntry, error) {
	raw, err := l.entry(index)
	if err != nil {
		return SGEntry{}, err
	}

	return SGEntry{
		Address: binary.LittleEndian.Uint64(raw[0:8]),
		Count:   binary.LittleEndian.Uint32(raw[8:12]),
	}, nil
}

// Terminated reports whether the terminator entry is still zero
func (l SGList) Terminated() bool {
	payload := l.structure.Payload()
	for _, b := range payload[len(payload)-sizing.SGEntrySize:] {
		if b != 0 {
			return false
		}
	}

	return true
}

// TakeStructure carves one structure of the provided class, stamps it through the guard and records it
// in the cursor's ledger
func (c *Cursor) TakeStructure(class sizing.SizeClass) (guard.Structure, error) {
	size := c.guard.Catalog().Size(class)
	if size == 0 {
		return guard.Structure{}, cerrors.Wrapf(memutils.ValidationError, "unknown size class %d", redact.Safe(uint32(class)))
	}

	region, err := c.Take(size)
	if err != nil {
		return guard.Structure{}, cerrors.Wrapf(err, "carving %s", class)
	}

	structure, err := c.guard.InitStructure(region.Bytes, class)
	if err != nil {
		return guard.Structure{}, err
	}

	if c.ledger != nil {
		c.ledger.Record(structure)
	}

	return structure, nil
}

// TakeSGList carves the smallest scatter/gather list able to describe the provided number of fragments
func (c *Cursor) TakeSGList(entries int) (SGList, error) {
	index, err := sizing.SGCountIndex(entries)
	if err != nil {
		return SGList{}, err
	}

	structure, err := c.TakeStructure(index.Class())
	if err != nil {
		return SGList{}, err
	}

	return SGList{structure: structure}, nil
}
