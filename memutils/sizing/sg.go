package sizing

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/fbestack/raidmem/memutils"
)

// SGIndex is the position of a scatter/gather class among the scatter/gather classes, in ascending
// order of capacity
type SGIndex int

const (
	SGIndex1 SGIndex = iota
	SGIndex8
	SGIndex32
	SGIndex128
	SGIndexMax

	SGIndexCount int = iota
)

var sgClasses = [SGIndexCount]SizeClass{
	SGIndex1:   SizeClassSgList1,
	SGIndex8:   SizeClassSgList8,
	SGIndex32:  SizeClassSgList32,
	SGIndex128: SizeClassSgList128,
	SGIndexMax: SizeClassSgListMax,
}

// Class returns the size class of the scatter/gather lists at this index
func (i SGIndex) Class() SizeClass {
	return sgClasses[i]
}

// MaxCount returns the number of usable entries, excluding the terminator, in a list at this index
func (i SGIndex) MaxCount() int {
	return sgClasses[i].SGEntries() - 1
}

// SGIndexForClass maps a scatter/gather size class back to its index
func SGIndexForClass(class SizeClass) (SGIndex, error) {
	for index, sgClass := range sgClasses {
		if sgClass == class {
			return SGIndex(index), nil
		}
	}

	return 0, cerrors.Wrapf(memutils.ValidationError, "%s is not a scatter/gather class", class)
}

// SGCountIndex returns the index of the smallest scatter/gather class that can describe the provided
// number of fragments
func SGCountIndex(entries int) (SGIndex, error) {
	if entries < 0 {
		return 0, cerrors.Wrapf(memutils.ValidationError, "scatter/gather entry count %d is negative", redact.Safe(entries))
	}

	for index := range sgClasses {
		if entries <= SGIndex(index).MaxCount() {
			return SGIndex(index), nil
		}
	}

	return 0, cerrors.Wrapf(memutils.ValidationError, "scatter/gather entry count %d exceeds the maximum of %d",
		redact.Safe(entries), redact.Safe(MaxSGEntries))
}
