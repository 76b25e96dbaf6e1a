package carve

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/fbestack/raidmem/memutils"
	"github.com/fbestack/raidmem/memutils/guard"
	"github.com/fbestack/raidmem/memutils/sizing"
)

// Carving holds every region carved for one set of ResourceCounts
type Carving struct {
	Buffers    []Region
	Structures [sizing.SizeClassCount][]guard.Structure
	SGLists    []SGList
}

// Count returns the number of structures of the provided class in the carving
func (c *Carving) Count(class sizing.SizeClass) int {
	if int(class) >= sizing.SizeClassCount {
		return 0
	}

	return len(c.Structures[class])
}

// BufferBytes returns the total buffer space carved
func (c *Carving) BufferBytes() int {
	var total int
	for _, region := range c.Buffers {
		total += region.Len()
	}

	return total
}

// Carve places everything described by counts, in the order the PageSizer consumed it: buffer space from
// the data cursor, then the control sequence from the control cursor. The data cursor may be nil when no
// buffer space was requested.
func Carve(sizer *sizing.PageSizer, counts sizing.ResourceCounts, control, data *Cursor) (*Carving, error) {
	carving := &Carving{}

	bufferBytes := sizer.BufferBytes(&counts)
	if bufferBytes > 0 {
		if data == nil {
			return nil, cerrors.Wrap(memutils.ValidationError, "buffer space requested without a data cursor")
		}

		buffers, err := data.TakeBuffer(bufferBytes)
		if err != nil {
			return nil, cerrors.Wrap(err, "carving buffers")
		}
		carving.Buffers = buffers
	}

	sequence := sizer.ControlSequence(&counts)
	if len(sequence) > 0 && control == nil {
		return nil, cerrors.Wrap(memutils.ValidationError, "structures requested without a control cursor")
	}

	for _, reservation := range sequence {
		for i := 0; i < reservation.Count; i++ {
			structure, err := control.TakeStructure(reservation.Class)
			if err != nil {
				return nil, err
			}

			carving.Structures[reservation.Class] = append(carving.Structures[reservation.Class], structure)
			if reservation.Class.IsSGList() {
				carving.SGLists = append(carving.SGLists, SGList{structure: structure})
			}
		}
	}

	if control != nil && control.ledger != nil {
		memutils.DebugValidate(control.ledger)
	}

	return carving, nil
}
