package guard

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	cerrors "github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/fbestack/raidmem/memutils"
	"github.com/fbestack/raidmem/memutils/sizing"
)

// Mode selects how granted pages and carved structures are protected
type Mode uint32

const (
	// ModeOff places no headers or footers in pages or structures
	ModeOff Mode = iota
	// ModeMagic stamps fixed magic values in page and structure headers and footers
	ModeMagic
	// ModeChecksum stamps the magic values and additionally stores a hash of each header in its footer
	ModeChecksum
)

var modeMapping = map[Mode]string{
	ModeOff:      "ModeOff",
	ModeMagic:    "ModeMagic",
	ModeChecksum: "ModeChecksum",
}

func (m Mode) String() string {
	str, ok := modeMapping[m]
	if !ok {
		return "unknown Mode"
	}

	return str
}

// DefaultMode is ModeMagic when built with the debug_raid_memory tag and ModeOff otherwise
func DefaultMode() Mode {
	if memutils.DebugGuard {
		return ModeMagic
	}

	return ModeOff
}

const (
	// HeaderMagic is the 4-byte pattern written into every page and structure header
	HeaderMagic uint32 = 0x7F84E666
	// FooterMagic is the 4-byte pattern written into every page and structure footer
	FooterMagic uint32 = 0x5AFEF007

	pageTagBase uint32 = 0x50470000
)

// Guard stamps granted pages and carved structures with headers and footers, and later verifies that
// nothing has overwritten them
type Guard struct {
	mode Mode
}

func New(mode Mode) (*Guard, error) {
	if _, ok := modeMapping[mode]; !ok {
		return nil, cerrors.Wrapf(memutils.ValidationError, "unknown guard mode %d", redact.Safe(uint32(mode)))
	}

	return &Guard{mode: mode}, nil
}

func (g *Guard) Mode() Mode {
	return g.mode
}

func (g *Guard) Enabled() bool {
	return g.mode != ModeOff
}

// Catalog returns a size catalog that accounts for this guard's headers and footers
func (g *Guard) Catalog() sizing.Catalog {
	return sizing.NewCatalog(g.Enabled())
}

// Usable returns the portion of a page that may hold structures or buffer data
func (g *Guard) Usable(page memutils.Page) []byte {
	if !g.Enabled() {
		return page
	}

	return page[sizing.PageHeaderBytes : len(page)-sizing.PageFooterBytes]
}

func pageTag(tier sizing.PageTier) uint32 {
	return pageTagBase | uint32(tier)
}

func (g *Guard) footerChecksum(header []byte) uint64 {
	if g.mode != ModeChecksum {
		return 0
	}

	return xxhash.Sum64(header)
}

// InitPages stamps the header and footer of every page in the list
func (g *Guard) InitPages(pages memutils.PageList, tier sizing.PageTier) error {
	if !g.Enabled() {
		return nil
	}

	for index, page := range pages {
		if len(page) != tier.Bytes() {
			return cerrors.Wrapf(memutils.AllocationError, "page %d has %d bytes, expected %d for %s",
				redact.Safe(index), redact.Safe(len(page)), redact.Safe(tier.Bytes()), tier)
		}

		header := page[:sizing.PageHeaderBytes]
		binary.LittleEndian.PutUint32(header[0:4], pageTag(tier))
		binary.LittleEndian.PutUint32(header[4:8], HeaderMagic)
		binary.LittleEndian.PutUint32(header[8:12], uint32(index))
		binary.LittleEndian.PutUint32(header[12:16], 0)

		footer := page[len(page)-sizing.PageFooterBytes:]
		binary.LittleEndian.PutUint32(footer[0:4], FooterMagic)
		binary.LittleEndian.PutUint64(footer[4:12], g.footerChecksum(header))
		binary.LittleEndian.PutUint32(footer[12:16], ^pageTag(tier))
	}

	return nil
}

// ValidatePages verifies every page stamped by InitPages. It returns a wrapped
// memutils.CorruptionDetectedError naming the first damaged page.
func (g *Guard) ValidatePages(pages memutils.PageList, tier sizing.PageTier) error {
	if !g.Enabled() {
		return nil
	}

	for index, page := range pages {
		err := g.validatePage(page, tier, index)
		if err != nil {
			return cerrors.Wrapf(err, "page %d", redact.Safe(index))
		}
	}

	return nil
}

func (g *Guard) validatePage(page memutils.Page, tier sizing.PageTier, index int) error {
	if len(page) != tier.Bytes() {
		return cerrors.Wrapf(memutils.CorruptionDetectedError, "page has %d bytes, expected %d",
			redact.Safe(len(page)), redact.Safe(tier.Bytes()))
	}

	header := page[:sizing.PageHeaderBytes]
	if tag := binary.LittleEndian.Uint32(header[0:4]); tag != pageTag(tier) {
		return cerrors.Wrapf(memutils.CorruptionDetectedError, "header tag is 0x%x, expected 0x%x",
			redact.Safe(tag), redact.Safe(pageTag(tier)))
	}
	if magic := binary.LittleEndian.Uint32(header[4:8]); magic != HeaderMagic {
		return cerrors.Wrapf(memutils.CorruptionDetectedError, "header magic is 0x%x", redact.Safe(magic))
	}
	if stampedIndex := binary.LittleEndian.Uint32(header[8:12]); stampedIndex != uint32(index) {
		return cerrors.Wrapf(memutils.CorruptionDetectedError, "header index is %d", redact.Safe(stampedIndex))
	}
	if reserved := binary.LittleEndian.Uint32(header[12:16]); reserved != 0 {
		return cerrors.Wrapf(memutils.CorruptionDetectedError, "header reserved word is 0x%x", redact.Safe(reserved))
	}

	footer := page[len(page)-sizing.PageFooterBytes:]
	if magic := binary.LittleEndian.Uint32(footer[0:4]); magic != FooterMagic {
		return cerrors.Wrapf(memutils.CorruptionDetectedError, "footer magic is 0x%x", redact.Safe(magic))
	}
	if checksum := binary.LittleEndian.Uint64(footer[4:12]); checksum != g.footerChecksum(header) {
		return cerrors.Wrapf(memutils.CorruptionDetectedError, "footer checksum is 0x%x", redact.Safe(checksum))
	}
	if tag := binary.LittleEndian.Uint32(footer[12:16]); tag != ^pageTag(tier) {
		return cerrors.Wrapf(memutils.CorruptionDetectedError, "footer tag is 0x%x", redact.Safe(tag))
	}

	return nil
}
