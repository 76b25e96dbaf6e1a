package sizing

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/fbestack/raidmem/memutils"
)

// PageTier is one of the page sizes the page source can grant. Every page of a single request,
// control and data alike, is granted from the same tier.
type PageTier uint32

const (
	// PageTierAuto leaves the choice of tier to the PageSizer
	PageTierAuto PageTier = iota
	// PageTierSmall pages are only used for grants that hold a single structure
	PageTierSmall
	// PageTierStandard is the default tier for control and data pages
	PageTierStandard
	// PageTierLarge is used when a request's buffers or descriptor array would not fit the standard tier
	PageTierLarge
)

const (
	// BytesPerBlock is the size of a single backend block. Buffer space is always requested in blocks.
	BytesPerBlock int = 512
	// CachePageBlocks is the largest transfer, in blocks, that the cache layer assumes will be satisfied
	// from standard pages
	CachePageBlocks int = 128
	// MaxBlocks is the largest number of buffer blocks a single request may ask for
	MaxBlocks int = 1 << 17
	// MaxTotalPages is the bound, exclusive, on the control and data pages of a single request
	MaxTotalPages int = 0x20000
)

var pageTierMapping = map[PageTier]string{
	PageTierAuto:     "PageTierAuto",
	PageTierSmall:    "PageTierSmall",
	PageTierStandard: "PageTierStandard",
	PageTierLarge:    "PageTierLarge",
}

func (t PageTier) String() string {
	str, ok := pageTierMapping[t]
	if !ok {
		return "unknown PageTier"
	}

	return str
}

var pageTierBlocks = map[PageTier]int{
	PageTierSmall:    4,
	PageTierStandard: 64,
	PageTierLarge:    128,
}

// Blocks returns the number of BytesPerBlock blocks in a page of this tier, or 0 for PageTierAuto
func (t PageTier) Blocks() int {
	return pageTierBlocks[t]
}

// Bytes returns the raw size of a page of this tier, or 0 for PageTierAuto
func (t PageTier) Bytes() int {
	return t.Blocks() * BytesPerBlock
}

// ValidForControl indicates whether pages of this tier may hold more than one structure
func (t PageTier) ValidForControl() bool {
	return t == PageTierStandard || t == PageTierLarge
}

// TierForPageBytes maps a raw page size back to the tier that grants it
func TierForPageBytes(pageBytes int) (PageTier, error) {
	err := memutils.CheckPow2(pageBytes, "page bytes")
	if err != nil {
		return PageTierAuto, cerrors.Mark(err, memutils.ValidationError)
	}

	for _, tier := range []PageTier{PageTierSmall, PageTierStandard, PageTierLarge} {
		if tier.Bytes() == pageBytes {
			return tier, nil
		}
	}

	return PageTierAuto, cerrors.Wrapf(memutils.ValidationError, "no page tier has %d bytes per page", pageBytes)
}
