// Package paged provides a sparse, page-indexed view over a logically large
// remote collection.
//
// A Collection has a fixed page size and a total count that may start as an
// estimate. Pages are materialized only when a fetch for them succeeds; an
// absent page means "not yet loaded", never "empty".
//
// A Collection is not safe for concurrent use. It is owned by a single feed
// session and mutated only on that session's goroutine.
package paged

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidPageSize is returned when a collection is created with a page size < 1.
	ErrInvalidPageSize = errors.New("page size must be positive")

	// ErrInvalidCount is returned when a collection is created with a negative count.
	ErrInvalidCount = errors.New("count must not be negative")
)

// Range is a half-open range [Start, End) of global indexes.
type Range struct {
	Start int
	End   int
}

// Len returns the number of indexes in the range.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether i lies within the range.
func (r Range) Contains(i int) bool {
	return i >= r.Start && i < r.End
}

// String implements fmt.Stringer.
func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Collection is a fixed-length sequence of items stored as a sparse mapping
// from page index to page contents.
type Collection[T any] struct {
	count    int
	pageSize int
	pages    map[int][]T
}

// New creates an empty collection with the given total count and page size.
func New[T any](count, pageSize int) (*Collection[T], error) {
	if pageSize < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidPageSize, pageSize)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidCount, count)
	}
	return &Collection[T]{
		count:    count,
		pageSize: pageSize,
		pages:    make(map[int][]T),
	}, nil
}

// Count returns the known or estimated total number of items.
func (c *Collection[T]) Count() int {
	return c.count
}

// PageSize returns the fixed page size.
func (c *Collection[T]) PageSize() int {
	return c.pageSize
}

// PageCount returns the number of pages needed to cover Count items.
func (c *Collection[T]) PageCount() int {
	return (c.count + c.pageSize - 1) / c.pageSize
}

// PageIndexFor returns the page owning globalIndex.
func (c *Collection[T]) PageIndexFor(globalIndex int) int {
	return globalIndex / c.pageSize
}

// ValidPage reports whether page lies within [0, PageCount()).
func (c *Collection[T]) ValidPage(page int) bool {
	return page >= 0 && page < c.PageCount()
}

// IsPageLoaded reports whether page has been materialized.
func (c *Collection[T]) IsPageLoaded(page int) bool {
	_, ok := c.pages[page]
	return ok
}

// ItemAt returns the item at globalIndex. The second result is false when the
// index is out of [0, Count()) or its page has not been loaded.
func (c *Collection[T]) ItemAt(globalIndex int) (T, bool) {
	var zero T
	if globalIndex < 0 || globalIndex >= c.count {
		return zero, false
	}
	items, ok := c.pages[c.PageIndexFor(globalIndex)]
	if !ok {
		return zero, false
	}
	offset := globalIndex % c.pageSize
	if offset >= len(items) {
		return zero, false
	}
	return items[offset], true
}

// SetPage stores items for page, replacing anything previously stored.
// The slice is copied so later changes by the caller do not leak in.
func (c *Collection[T]) SetPage(page int, items []T) {
	if page < 0 {
		return
	}
	stored := make([]T, len(items))
	copy(stored, items)
	c.pages[page] = stored
}

// SetTotalCount changes the total length. Pages past the new boundary are
// kept but become unreachable through ItemAt.
func (c *Collection[T]) SetTotalCount(n int) {
	if n < 0 {
		n = 0
	}
	c.count = n
}

// Reset drops every loaded page. Count and page size are unchanged.
func (c *Collection[T]) Reset() {
	c.pages = make(map[int][]T)
}

// BoundsFor returns the global index range covered by page, clipped to Count.
func (c *Collection[T]) BoundsFor(page int) Range {
	start := page * c.pageSize
	end := (page + 1) * c.pageSize
	if end > c.count {
		end = c.count
	}
	if start > end {
		start = end
	}
	return Range{Start: start, End: end}
}

// LoadedPages returns the indexes of all loaded pages in ascending order.
func (c *Collection[T]) LoadedPages() []int {
	pages := make([]int, 0, len(c.pages))
	for p := range c.pages {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}
