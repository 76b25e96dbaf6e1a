package sizing

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/fbestack/raidmem/memutils"
)

// PageCount is the result of sizing a request: how many pages of which tier to ask the page source for
type PageCount struct {
	Tier         PageTier
	ControlPages int
	DataPages    int
}

func (p PageCount) TotalPages() int {
	return p.ControlPages + p.DataPages
}

// CapacityBytes is the raw size of every page in the request
func (p PageCount) CapacityBytes() int {
	return p.TotalPages() * p.Tier.Bytes()
}

// Reservation is one category of the fixed consumption order used both to size control pages and to
// carve them
type Reservation struct {
	Class SizeClass
	Count int
}

// PageSizer converts ResourceCounts into a PageCount.
//
// Control pages are packed in a fixed consumption order: transfer descriptors, the nested
// sub-transaction, the verify structures, then scatter/gather lists in ascending order of capacity. When
// a category does not fill its last page, the leftover bytes of that page are consumed first by the next
// category. Structures are never split across pages, so the result is exactly the number of pages a
// cursor needs to carve the same categories in the same order. The order returned by ControlSequence must
// therefore be used by anything that carves the granted pages.
//
// Data pages hold only buffer space, in whole blocks, which may straddle page boundaries. Leftover space
// is never carried between the data and control page lists.
type PageSizer struct {
	catalog Catalog
}

func NewPageSizer(catalog Catalog) *PageSizer {
	return &PageSizer{catalog: catalog}
}

func (s *PageSizer) Catalog() Catalog {
	return s.catalog
}

// SelectTier chooses the page tier for a request. An explicit control or data tier wins; otherwise
// the standard tier is used unless the buffers, the descriptor array, or the overall transfer are too
// large for it.
func (s *PageSizer) SelectTier(counts *ResourceCounts) PageTier {
	if counts.ControlTier != PageTierAuto {
		return counts.ControlTier
	}
	if counts.DataTier != PageTierAuto {
		return counts.DataTier
	}

	if counts.BufferBlocks > PageTierStandard.Blocks() ||
		counts.TransferDescriptors*s.catalog.Size(SizeClassTransferDescriptor) > s.catalog.UsableBytes(PageTierStandard) ||
		counts.TransferBlocks > CachePageBlocks {
		return PageTierLarge
	}

	return PageTierStandard
}

// ControlSequence returns the categories carved from control pages, in consumption order, skipping
// empty categories
func (s *PageSizer) ControlSequence(counts *ResourceCounts) []Reservation {
	sequence := make([]Reservation, 0, 4+SGIndexCount)
	appendNonEmpty := func(class SizeClass, count int) {
		if count > 0 {
			sequence = append(sequence, Reservation{Class: class, Count: count})
		}
	}

	appendNonEmpty(SizeClassTransferDescriptor, counts.TransferDescriptors)
	if counts.ReservesRecovery() {
		if counts.NestedSubTransaction {
			appendNonEmpty(SizeClassSubTransaction, 1)
		}
		if counts.VerifyStructures {
			appendNonEmpty(SizeClassVerifyCounters, 1)
			appendNonEmpty(SizeClassVerifyRange, 1)
		}
	}

	for index, count := range counts.SGLists {
		appendNonEmpty(SGIndex(index).Class(), count)
	}

	return sequence
}

// BufferBytes returns the number of bytes of buffer space carved from data pages
func (s *PageSizer) BufferBytes(counts *ResourceCounts) int {
	return counts.BufferBlocks * BytesPerBlock
}

// CalculatePages sizes a request. It fails with a wrapped memutils.ValidationError if the counts are
// malformed or cannot be satisfied by a single request.
func (s *PageSizer) CalculatePages(counts ResourceCounts) (PageCount, error) {
	err := counts.Validate()
	if err != nil {
		return PageCount{}, err
	}

	tier := s.SelectTier(&counts)
	if !tier.ValidForControl() {
		return PageCount{}, cerrors.Wrapf(memutils.ValidationError, "%s may only be used for single-structure grants", tier)
	}

	usable := s.catalog.UsableBytes(tier)
	packer := pagePacker{usable: usable}

	sequence := s.ControlSequence(&counts)
	for _, reservation := range sequence {
		size := s.catalog.Size(reservation.Class)
		if size > usable {
			return PageCount{}, cerrors.Wrapf(memutils.ValidationError, "%s of %d bytes does not fit in a %s page",
				reservation.Class, redact.Safe(size), tier)
		}

		packer.reserve(size, reservation.Count)
	}

	result := PageCount{
		Tier:         tier,
		ControlPages: packer.pages,
		DataPages:    memutils.DivideRoundUp(s.BufferBytes(&counts), s.catalog.BufferBytesPerPage(tier)),
	}

	if result.TotalPages() >= MaxTotalPages {
		return PageCount{}, cerrors.Wrapf(memutils.ValidationError, "request needs %d pages, the limit is %d",
			redact.Safe(result.TotalPages()), redact.Safe(MaxTotalPages-1))
	}

	return result, nil
}

// SizeSingle sizes a grant of a single structure, using the smallest tier that can hold it. This is
// the only kind of request that may use PageTierSmall.
func (s *PageSizer) SizeSingle(class SizeClass) (PageCount, error) {
	tier, err := s.catalog.Tier(class)
	if err != nil {
		return PageCount{}, err
	}

	return PageCount{Tier: tier, ControlPages: 1}, nil
}

type pagePacker struct {
	usable    int
	pages     int
	remaining int
}

func (p *pagePacker) reserve(size, count int) {
	if count <= 0 {
		return
	}

	fromRemaining := minInt(count, p.remaining/size)
	p.remaining -= fromRemaining * size
	count -= fromRemaining
	if count == 0 {
		return
	}

	perPage := p.usable / size
	fullPages := count / perPage
	leftover := count % perPage

	p.pages += fullPages
	p.remaining = p.usable - perPage*size
	if leftover > 0 {
		p.pages++
		p.remaining = p.usable - leftover*size
	}
}

func minInt(left, right int) int {
	if left < right {
		return left
	}

	return right
}
