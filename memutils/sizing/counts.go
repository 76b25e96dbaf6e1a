package sizing

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/fbestack/raidmem/memutils"
)

// SizingPath selects how much a request reserves beyond the structures the I/O needs right away
type SizingPath uint32

const (
	// SizingPathFull reserves every requested structure, including the nested sub-transaction and
	// verify structures needed for error recovery
	SizingPathFull SizingPath = iota
	// SizingPathFast reserves only buffers, transfer descriptors and scatter/gather lists. It is used when
	// no error-recovery resources are reserved up front.
	SizingPathFast
)

var sizingPathMapping = map[SizingPath]string{
	SizingPathFull: "SizingPathFull",
	SizingPathFast: "SizingPathFast",
}

func (p SizingPath) String() string {
	str, ok := sizingPathMapping[p]
	if !ok {
		return "unknown SizingPath"
	}

	return str
}

// ResourceCounts describes everything a sub-transaction needs carved out of its pages. The counts
// come from the RAID geometry layer.
type ResourceCounts struct {
	// BufferBlocks is the amount of staging buffer space, in BytesPerBlock blocks, placed on the data pages
	BufferBlocks int
	// TransferDescriptors is the number of per-drive transfer descriptors
	TransferDescriptors int
	// NestedSubTransaction reserves a nested sub-transaction for error recovery
	NestedSubTransaction bool
	// VerifyStructures reserves one VerifyCounters and one VerifyRange structure
	VerifyStructures bool
	// SGLists is the number of scatter/gather lists needed of each class
	SGLists [SGIndexCount]int
	// TransferBlocks is the size of the overall I/O, used only to pick the page tier
	TransferBlocks int

	// ControlTier and DataTier force a page tier. Left as PageTierAuto, the PageSizer chooses.
	ControlTier PageTier
	DataTier    PageTier

	Path SizingPath
}

// AddSGList records one scatter/gather list able to hold the provided number of fragments
func (r *ResourceCounts) AddSGList(entries int) error {
	index, err := SGCountIndex(entries)
	if err != nil {
		return err
	}

	r.SGLists[index]++
	return nil
}

// ReservesRecovery indicates whether the nested sub-transaction and verify structures are part of the
// reservation for this path
func (r *ResourceCounts) ReservesRecovery() bool {
	return r.Path == SizingPathFull
}

// ControlStructures returns the number of structures that will be carved from control pages
func (r *ResourceCounts) ControlStructures() int {
	count := r.TransferDescriptors
	if r.ReservesRecovery() {
		if r.NestedSubTransaction {
			count++
		}
		if r.VerifyStructures {
			count += 2
		}
	}

	for _, sgCount := range r.SGLists {
		count += sgCount
	}

	return count
}

func (r *ResourceCounts) Validate() error {
	if r.BufferBlocks < 0 {
		return cerrors.Wrapf(memutils.ValidationError, "buffer block count %d is negative", redact.Safe(r.BufferBlocks))
	}
	if r.BufferBlocks > MaxBlocks {
		return cerrors.Wrapf(memutils.ValidationError, "buffer block count %d exceeds the maximum of %d",
			redact.Safe(r.BufferBlocks), redact.Safe(MaxBlocks))
	}
	if r.TransferDescriptors < 0 {
		return cerrors.Wrapf(memutils.ValidationError, "transfer descriptor count %d is negative", redact.Safe(r.TransferDescriptors))
	}
	if r.TransferBlocks < 0 {
		return cerrors.Wrapf(memutils.ValidationError, "transfer block count %d is negative", redact.Safe(r.TransferBlocks))
	}
	for index, sgCount := range r.SGLists {
		if sgCount < 0 {
			return cerrors.Wrapf(memutils.ValidationError, "%s count %d is negative", SGIndex(index).Class(), redact.Safe(sgCount))
		}
	}
	if _, ok := sizingPathMapping[r.Path]; !ok {
		return cerrors.Wrapf(memutils.ValidationError, "unknown sizing path %d", redact.Safe(uint32(r.Path)))
	}
	if _, ok := pageTierMapping[r.ControlTier]; !ok {
		return cerrors.Wrapf(memutils.ValidationError, "unknown control page tier %d", redact.Safe(uint32(r.ControlTier)))
	}
	if _, ok := pageTierMapping[r.DataTier]; !ok {
		return cerrors.Wrapf(memutils.ValidationError, "unknown data page tier %d", redact.Safe(uint32(r.DataTier)))
	}
	if r.ControlTier != PageTierAuto && r.DataTier != PageTierAuto && r.ControlTier != r.DataTier {
		return cerrors.Wrapf(memutils.ValidationError, "control tier %s does not match data tier %s", r.ControlTier, r.DataTier)
	}
	if r.BufferBlocks == 0 && r.ControlStructures() == 0 {
		return cerrors.Wrap(memutils.ValidationError, "request does not reserve any memory")
	}

	return nil
}
