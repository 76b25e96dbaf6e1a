package memutils

// Page is a single page granted by a page source. Pages of one request all have the same length.
type Page []byte

// PageList is the ordered set of pages granted for one half, control or data, of a request
type PageList []Page

// Bytes returns the raw size of every page in the list
func (l PageList) Bytes() int {
	var total int
	for _, page := range l {
		total += len(page)
	}

	return total
}
