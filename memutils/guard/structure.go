package guard

import (
	"encoding/binary"

	cerrors "github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/fbestack/raidmem/memutils"
	"github.com/fbestack/raidmem/memutils/sizing"
)

// Structure is a carved structure as it sits in its page: guard header, payload, guard footer
type Structure struct {
	Class  sizing.SizeClass
	Extent []byte

	guard *Guard
}

var _ memutils.Validatable = Structure{}

// Payload returns the part of the structure that belongs to its user
func (s Structure) Payload() []byte {
	if !s.guard.Enabled() {
		return s.Extent
	}

	return s.Extent[sizing.StructureHeaderBytes : len(s.Extent)-sizing.StructureFooterBytes]
}

func (s Structure) Validate() error {
	return s.guard.ValidateStructure(s.Extent, s.Class)
}

func structureTag(class sizing.SizeClass) uint32 {
	return 0x53540000 | uint32(class)
}

// InitStructure stamps a freshly carved extent, which must be exactly Catalog().Size(class) bytes. The
// terminator entry of a scatter/gather list is zeroed whether or not the guard is enabled.
func (g *Guard) InitStructure(extent []byte, class sizing.SizeClass) (Structure, error) {
	if len(extent) != g.Catalog().Size(class) {
		return Structure{}, cerrors.Wrapf(memutils.ValidationError, "%s extent has %d bytes, expected %d",
			class, redact.Safe(len(extent)), redact.Safe(g.Catalog().Size(class)))
	}

	structure := Structure{Class: class, Extent: extent, guard: g}

	if class.IsSGList() {
		payload := structure.Payload()
		terminator := payload[len(payload)-sizing.SGEntrySize:]
		for i := range terminator {
			terminator[i] = 0
		}
	}

	if !g.Enabled() {
		return structure, nil
	}

	header := extent[:sizing.StructureHeaderBytes]
	binary.LittleEndian.PutUint32(header[0:4], structureTag(class))
	binary.LittleEndian.PutUint32(header[4:8], HeaderMagic)

	footer := extent[len(extent)-sizing.StructureFooterBytes:]
	binary.LittleEndian.PutUint32(footer[0:4], FooterMagic)
	binary.LittleEndian.PutUint32(footer[4:8], uint32(g.footerChecksum(header)))

	return structure, nil
}

// ValidateStructure verifies a structure stamped by InitStructure, including the scatter/gather
// terminator entry
func (g *Guard) ValidateStructure(extent []byte, class sizing.SizeClass) error {
	if !g.Enabled() {
		return nil
	}

	if len(extent) != g.Catalog().Size(class) {
		return cerrors.Wrapf(memutils.CorruptionDetectedError, "%s extent has %d bytes", class, redact.Safe(len(extent)))
	}

	header := extent[:sizing.StructureHeaderBytes]
	if tag := binary.LittleEndian.Uint32(header[0:4]); tag != structureTag(class) {
		return cerrors.Wrapf(memutils.CorruptionDetectedError, "%s header tag is 0x%x", class, redact.Safe(tag))
	}
	if magic := binary.LittleEndian.Uint32(header[4:8]); magic != HeaderMagic {
		return cerrors.Wrapf(memutils.CorruptionDetectedError, "%s header magic is 0x%x", class, redact.Safe(magic))
	}

	footer := extent[len(extent)-sizing.StructureFooterBytes:]
	if magic := binary.LittleEndian.Uint32(footer[0:4]); magic != FooterMagic {
		return cerrors.Wrapf(memutils.CorruptionDetectedError, "%s footer magic is 0x%x", class, redact.Safe(magic))
	}
	if checksum := binary.LittleEndian.Uint32(footer[4:8]); checksum != uint32(g.footerChecksum(header)) {
		return cerrors.Wrapf(memutils.CorruptionDetectedError, "%s footer checksum is 0x%x", class, redact.Safe(checksum))
	}

	if class.IsSGList() {
		payload := extent[sizing.StructureHeaderBytes : len(extent)-sizing.StructureFooterBytes]
		for _, b := range payload[len(payload)-sizing.SGEntrySize:] {
			if b != 0 {
				return cerrors.Wrapf(memutils.CorruptionDetectedError, "%s terminator entry was overwritten", class)
			}
		}
	}

	return nil
}

// Ledger records every structure carved from a request's pages so they can be validated before the
// pages are returned
type Ledger struct {
	structures []Structure
}

func (l *Ledger) Record(structure Structure) {
	l.structures = append(l.structures, structure)
}

func (l *Ledger) Len() int {
	return len(l.structures)
}

func (l *Ledger) Validate() error {
	return memutils.ValidateEach(l.structures)
}

func (l *Ledger) Reset() {
	l.structures = l.structures[:0]
}
