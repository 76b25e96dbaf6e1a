package carve

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/fbestack/raidmem/memutils"
	"github.com/fbestack/raidmem/memutils/guard"
	"github.com/fbestack/raidmem/memutils/sizing"
)

// MaxCursorPages is the largest page list a single cursor will walk
const MaxCursorPages int = 0x2000

const noBookmark int = -1

// Region is a carved, bounds-limited view of page memory. Its Bytes slice has its capacity clipped to
// its length, so it can never be extended into a neighbouring structure.
type Region struct {
	// Page is the index of the page in the cursor's page list
	Page int
	// Offset is the offset of the region from the start of the raw page
	Offset int
	Bytes  []byte
}

func (r Region) Len() int {
	return len(r.Bytes)
}

// End returns the offset one past the last byte of the region within its raw page
func (r Region) End() int {
	return r.Offset + len(r.Bytes)
}

// Bookmark marks the end of the buffer space reserved by ApplyOffset
type Bookmark struct {
	Page           int
	BytesRemaining int
}

// Cursor walks a granted page list, carving it into regions. A cursor is created for a single
// traversal and is never shared between goroutines.
type Cursor struct {
	guard  *guard.Guard
	ledger *guard.Ledger

	pages       memutils.PageList
	headerBytes int
	usableBytes int

	current   int
	remaining int

	// capacity bounds the total bytes carved, or is -1 when the page list itself is the only bound
	capacity int
	carved   int

	bookmark Bookmark
}

// NewCursor creates a cursor positioned at the start of the first page. Every structure carved with
// TakeStructure is stamped by the guard and recorded in the ledger, which may be nil.
func NewCursor(pages memutils.PageList, g *guard.Guard, ledger *guard.Ledger) (*Cursor, error) {
	if len(pages) > MaxCursorPages {
		return nil, cerrors.Wrapf(memutils.ValidationError, "cursor cannot walk %d pages, the limit is %d",
			redact.Safe(len(pages)), redact.Safe(MaxCursorPages))
	}

	cursor := &Cursor{
		guard:    g,
		ledger:   ledger,
		pages:    pages,
		capacity: -1,
		bookmark: Bookmark{Page: noBookmark},
	}

	if len(pages) == 0 {
		return cursor, nil
	}

	pageBytes := len(pages[0])
	_, err := sizing.TierForPageBytes(pageBytes)
	if err != nil {
		return nil, err
	}

	for index, page := range pages {
		if len(page) != pageBytes {
			return nil, cerrors.Wrapf(memutils.ValidationError, "page %d has %d bytes, the first page has %d",
				redact.Safe(index), redact.Safe(len(page)), redact.Safe(pageBytes))
		}
	}

	cursor.usableBytes = len(g.Usable(pages[0]))
	cursor.headerBytes = 0
	if g.Enabled() {
		cursor.headerBytes = sizing.PageHeaderBytes
	}
	cursor.remaining = cursor.usableBytes

	return cursor, nil
}

// NewBufferCursor creates a cursor over data pages that will never carve more than reservedBytes in
// total, the buffer space the request was sized for
func NewBufferCursor(pages memutils.PageList, g *guard.Guard, reservedBytes int) (*Cursor, error) {
	if reservedBytes < 0 {
		return nil, cerrors.Wrapf(memutils.ValidationError, "reserved buffer bytes %d is negative", redact.Safe(reservedBytes))
	}

	cursor, err := NewCursor(pages, g, nil)
	if err != nil {
		return nil, err
	}

	if reservedBytes > cursor.usableBytes*len(pages) {
		return nil, cerrors.Wrapf(memutils.ValidationError, "reserved buffer bytes %d exceed the %d usable bytes of the page list",
			redact.Safe(reservedBytes), redact.Safe(cursor.usableBytes*len(pages)))
	}

	cursor.capacity = reservedBytes
	return cursor, nil
}

// Restart returns a fresh cursor over the same pages, positioned at the start of the first page. The
// bookmark set by ApplyOffset is carried over so a later pass can call IsBufferSpaceRemaining.
func (c *Cursor) Restart() *Cursor {
	return &Cursor{
		guard:       c.guard,
		ledger:      c.ledger,
		pages:       c.pages,
		headerBytes: c.headerBytes,
		usableBytes: c.usableBytes,
		remaining:   c.usableBytes,
		capacity:    c.capacity,
		bookmark:    c.bookmark,
	}
}

func (c *Cursor) PageCount() int {
	return len(c.pages)
}

// UsableBytes is the number of bytes of each page that can be carved
func (c *Cursor) UsableBytes() int {
	return c.usableBytes
}

func (c *Cursor) CurrentPage() int {
	return c.current
}

func (c *Cursor) BytesRemainingInPage() int {
	return c.remaining
}

// Carved is the total number of bytes handed out, not counting page remainders skipped by Take
func (c *Cursor) Carved() int {
	return c.carved
}

func (c *Cursor) Bookmark() (Bookmark, bool) {
	return c.bookmark, c.bookmark.Page != noBookmark
}

func (c *Cursor) hasMorePages() bool {
	return c.current+1 < len(c.pages)
}

func (c *Cursor) advance() bool {
	if !c.hasMorePages() {
		return false
	}

	c.current++
	c.remaining = c.usableBytes
	return true
}

func (c *Cursor) capacityLeft() int {
	if c.capacity < 0 {
		return c.usableBytes * len(c.pages)
	}

	return c.capacity - c.carved
}

func (c *Cursor) carve(byteCount int) Region {
	offset := c.headerBytes + c.usableBytes - c.remaining
	page := c.pages[c.current]

	c.remaining -= byteCount
	c.carved += byteCount

	return Region{
		Page:   c.current,
		Offset: offset,
		Bytes:  page[offset : offset+byteCount : offset+byteCount],
	}
}

// Take carves byteCount contiguous bytes. A structure is never split: when the current page does not
// have enough room the cursor moves to the next page, abandoning the remainder. It returns a wrapped
// memutils.EmptyError when no page has room.
func (c *Cursor) Take(byteCount int) (Region, error) {
	if byteCount <= 0 {
		return Region{}, cerrors.Wrapf(memutils.ValidationError, "cannot take %d bytes", redact.Safe(byteCount))
	}
	if len(c.pages) == 0 {
		return Region{}, cerrors.Wrap(memutils.EmptyError, "cursor has no pages")
	}
	if byteCount > c.usableBytes {
		return Region{}, cerrors.Wrapf(memutils.ValidationError, "%d bytes will not fit in a page of %d usable bytes",
			redact.Safe(byteCount), redact.Safe(c.usableBytes))
	}
	if byteCount > c.capacityLeft() {
		return Region{}, cerrors.Wrapf(memutils.EmptyError, "%d bytes exceed the %d reserved bytes remaining",
			redact.Safe(byteCount), redact.Safe(c.capacityLeft()))
	}

	if c.remaining < byteCount && !c.advance() {
		return Region{}, cerrors.Wrapf(memutils.EmptyError, "%d bytes do not fit in the last page, %d bytes remain",
			redact.Safe(byteCount), redact.Safe(c.remaining))
	}

	return c.carve(byteCount), nil
}

// TakePartial carves up to byteCount bytes of buffer space from the current page. When the current
// page has some room but not enough, the returned region is shorter than requested and the caller asks
// again for the rest, which then comes from the start of the next page.
func (c *Cursor) TakePartial(byteCount int) (Region, error) {
	if byteCount <= 0 {
		return Region{}, cerrors.Wrapf(memutils.ValidationError, "cannot take %d bytes", redact.Safe(byteCount))
	}
	if len(c.pages) == 0 {
		return Region{}, cerrors.Wrap(memutils.EmptyError, "cursor has no pages")
	}

	capacityLeft := c.capacityLeft()
	if capacityLeft == 0 {
		return Region{}, cerrors.Wrap(memutils.EmptyError, "reserved buffer space is exhausted")
	}
	byteCount = minInt(byteCount, capacityLeft)

	if c.remaining == 0 && !c.advance() {
		return Region{}, cerrors.Wrap(memutils.EmptyError, "no pages remain")
	}

	return c.carve(minInt(c.remaining, byteCount)), nil
}

// TakeBuffer carves byteCount bytes of buffer space as a sequence of regions, straddling pages where
// necessary
func (c *Cursor) TakeBuffer(byteCount int) ([]Region, error) {
	var regions []Region
	for byteCount > 0 {
		region, err := c.TakePartial(byteCount)
		if err != nil {
			return nil, err
		}

		regions = append(regions, region)
		byteCount -= region.Len()
	}

	return regions, nil
}

// ApplyOffset advances through byteCount bytes of buffer space without handing any of it out, keeping
// every piece block aligned, and records the resulting position as the bookmark consulted by
// IsBufferSpaceRemaining
func (c *Cursor) ApplyOffset(byteCount int) error {
	return c.applyOffset(byteCount, sizing.BytesPerBlock, true)
}

// ApplyAllocationOffset is ApplyOffset for a run of count structures of allocationSize bytes each. Pieces
// are kept to whole allocations, and a page remainder too small for one allocation is skipped.
func (c *Cursor) ApplyAllocationOffset(count int, allocationSize int) error {
	if count < 0 || allocationSize <= 0 {
		return cerrors.Wrapf(memutils.ValidationError, "cannot apply an offset of %d allocations of %d bytes",
			redact.Safe(count), redact.Safe(allocationSize))
	}

	return c.applyOffset(count*allocationSize, allocationSize, false)
}

func (c *Cursor) applyOffset(byteCount int, unit int, alignRemaining bool) error {
	if byteCount < 0 {
		return cerrors.Wrapf(memutils.ValidationError, "cannot apply a negative offset of %d bytes", redact.Safe(byteCount))
	}
	if c.remaining == 0 && !c.hasMorePages() {
		if byteCount != 0 {
			return cerrors.Wrapf(memutils.EmptyError, "no pages remain to apply an offset of %d bytes", redact.Safe(byteCount))
		}
		return nil
	}

	for byteCount > 0 {
		if c.remaining < unit {
			// The rest of the page cannot hold a whole unit
			c.remaining = 0
			if !c.advance() {
				return cerrors.Wrapf(memutils.EmptyError, "no pages remain to apply the last %d bytes of the offset",
					redact.Safe(byteCount))
			}
			continue
		}

		var piece int
		if alignRemaining {
			memutils.DebugCheckPow2(unit, "offset unit")
			c.remaining = memutils.AlignDown(c.remaining, uint(unit))
			piece = minInt(c.remaining, byteCount)
		} else {
			piece = minInt(c.remaining, byteCount)
			piece -= piece % unit
		}

		region, err := c.TakePartial(piece)
		if err != nil {
			return err
		}

		byteCount -= region.Len()
	}

	c.bookmark = Bookmark{Page: c.current, BytesRemaining: c.remaining}
	return nil
}

// IsBufferSpaceRemaining reports whether bytesToPlant more bytes of buffer space can be consumed from the
// current position without passing the bookmark left by ApplyOffset or running out of pages
func (c *Cursor) IsBufferSpaceRemaining(bytesToPlant int) bool {
	if c.bookmark.Page != noBookmark {
		if c.current > c.bookmark.Page {
			return bytesToPlant == 0
		}
		if c.current == c.bookmark.Page && bytesToPlant > c.remaining-c.bookmark.BytesRemaining {
			return false
		}
	}

	if c.remaining < bytesToPlant && !c.hasMorePages() {
		return false
	}

	return true
}

func minInt(left, right int) int {
	if left < right {
		return left
	}

	return right
}
