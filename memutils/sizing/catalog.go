package sizing

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/fbestack/raidmem/memutils"
)

// SizeClass identifies one of the fixed-size structures that can be carved out of granted pages
type SizeClass uint32

const (
	SizeClassTransferDescriptor SizeClass = iota
	SizeClassSubTransaction
	SizeClassVerifyCounters
	SizeClassVerifyRange
	SizeClassBuffer2K
	SizeClassBuffer16K
	SizeClassBuffer32K
	SizeClassSgList1
	SizeClassSgList8
	SizeClassSgList32
	SizeClassSgList128
	SizeClassSgListMax

	SizeClassCount int = iota
)

const (
	// SGEntrySize is the size of a single (address, length) scatter/gather entry
	SGEntrySize int = 16
	// MaxSGEntries is the number of usable entries in the largest scatter/gather list
	MaxSGEntries int = 1024

	// StructureHeaderBytes is the size of the {type tag, magic} header placed in front of each carved
	// structure when the integrity guard is enabled
	StructureHeaderBytes int = 8
	// StructureFooterBytes is the size of the magic footer placed after each carved structure when the
	// integrity guard is enabled
	StructureFooterBytes int = 8
	// PageHeaderBytes is the size of the {type tag, magic, page index} header at the front of each
	// granted page when the integrity guard is enabled
	PageHeaderBytes int = 16
	// PageFooterBytes is the size of the footer at the end of each granted page when the integrity guard
	// is enabled
	PageFooterBytes int = 16
)

var sizeClassMapping = map[SizeClass]string{
	SizeClassTransferDescriptor: "SizeClassTransferDescriptor",
	SizeClassSubTransaction:     "SizeClassSubTransaction",
	SizeClassVerifyCounters:     "SizeClassVerifyCounters",
	SizeClassVerifyRange:        "SizeClassVerifyRange",
	SizeClassBuffer2K:           "SizeClassBuffer2K",
	SizeClassBuffer16K:          "SizeClassBuffer16K",
	SizeClassBuffer32K:          "SizeClassBuffer32K",
	SizeClassSgList1:            "SizeClassSgList1",
	SizeClassSgList8:            "SizeClassSgList8",
	SizeClassSgList32:           "SizeClassSgList32",
	SizeClassSgList128:          "SizeClassSgList128",
	SizeClassSgListMax:          "SizeClassSgListMax",
}

func (c SizeClass) String() string {
	str, ok := sizeClassMapping[c]
	if !ok {
		return "unknown SizeClass"
	}

	return str
}

// payloadSizes holds the unguarded size of each class. Scatter/gather lists carry one extra
// terminator entry past their usable entries.
var payloadSizes = [SizeClassCount]int{
	SizeClassTransferDescriptor: 512,
	SizeClassSubTransaction:     2048,
	SizeClassVerifyCounters:     256,
	SizeClassVerifyRange:        384,
	SizeClassBuffer2K:           2 * 1024,
	SizeClassBuffer16K:          16 * 1024,
	SizeClassBuffer32K:          32 * 1024,
	SizeClassSgList1:            (1 + 1) * SGEntrySize,
	SizeClassSgList8:            (8 + 1) * SGEntrySize,
	SizeClassSgList32:           (32 + 1) * SGEntrySize,
	SizeClassSgList128:          (128 + 1) * SGEntrySize,
	SizeClassSgListMax:          (MaxSGEntries + 1) * SGEntrySize,
}

// IsSGList indicates whether the class is one of the scatter/gather list classes
func (c SizeClass) IsSGList() bool {
	return c >= SizeClassSgList1 && c <= SizeClassSgListMax
}

// IsBuffer indicates whether the class is one of the staging buffer classes
func (c SizeClass) IsBuffer() bool {
	return c >= SizeClassBuffer2K && c <= SizeClassBuffer32K
}

// SGEntries returns the number of entries, terminator included, in a scatter/gather class. It returns 0
// for every other class.
func (c SizeClass) SGEntries() int {
	if !c.IsSGList() {
		return 0
	}

	return payloadSizes[c] / SGEntrySize
}

// PayloadSize returns the size of the structure itself, without any guard header or footer
func (c SizeClass) PayloadSize() int {
	if int(c) >= SizeClassCount {
		return 0
	}

	return payloadSizes[c]
}

// Catalog answers size questions about the structures carved from granted pages. Guarded catalogs
// account for the integrity guard's page and structure headers and footers.
type Catalog struct {
	guarded bool
}

func NewCatalog(guarded bool) Catalog {
	return Catalog{guarded: guarded}
}

func (c Catalog) Guarded() bool {
	return c.guarded
}

// Size returns the number of page bytes consumed by one structure of this class
func (c Catalog) Size(class SizeClass) int {
	size := class.PayloadSize()
	if c.guarded {
		size += StructureHeaderBytes + StructureFooterBytes
	}

	return size
}

// UsableBytes returns the number of bytes of a page that can hold structures or buffer data
func (c Catalog) UsableBytes(tier PageTier) int {
	usable := tier.Bytes()
	if c.guarded && usable > 0 {
		usable -= PageHeaderBytes + PageFooterBytes
	}

	return usable
}

// BufferBytesPerPage returns the usable bytes of a page rounded down to whole blocks. Buffer space is
// laid out in blocks, so the tail of a guarded page that is short of a block never holds buffer data.
func (c Catalog) BufferBytesPerPage(tier PageTier) int {
	return memutils.AlignDown(c.UsableBytes(tier), uint(BytesPerBlock))
}

// PerPage returns the number of whole structures of this class that fit in a single page of the tier
func (c Catalog) PerPage(class SizeClass, tier PageTier) int {
	size := c.Size(class)
	if size == 0 {
		return 0
	}

	return c.UsableBytes(tier) / size
}

// Tier returns the smallest tier that can hold a single structure of this class
func (c Catalog) Tier(class SizeClass) (PageTier, error) {
	if int(class) >= SizeClassCount {
		return PageTierAuto, cerrors.Wrapf(memutils.ValidationError, "unknown size class %d", redact.Safe(uint32(class)))
	}

	for _, tier := range []PageTier{PageTierSmall, PageTierStandard, PageTierLarge} {
		if c.PerPage(class, tier) > 0 {
			return tier, nil
		}
	}

	return PageTierAuto, cerrors.Wrapf(memutils.ValidationError, "%s does not fit in any page tier", class)
}
