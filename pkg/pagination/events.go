package pagination

import "github.com/Sternrassler/photofeed/pkg/paged"

// Event is emitted by the coordinator on the owner goroutine.
type Event interface {
	event()
}

// PageLoaded reports that the rows in Range now have data. Pages that end up
// entirely beyond the count emit nothing.
type PageLoaded struct {
	Page       int
	Range      paged.Range
	Generation uint64
}

// PageFailed reports a failed fetch. The page stays unloaded until it is
// requested again.
type PageFailed struct {
	Page       int
	Err        *FetchError
	Generation uint64
}

// TotalCountResolved reports the real size of the collection. A count
// inferred from a short page may be reported again, lower or replaced by a
// reported total, in the same generation.
type TotalCountResolved struct {
	Count      int
	Generation uint64
}

func (PageLoaded) event()         {}
func (PageFailed) event()         {}
func (TotalCountResolved) event() {}

// Observer receives coordinator events. OnEvent runs on the owner goroutine
// and must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f(e).
func (f ObserverFunc) OnEvent(e Event) {
	f(e)
}

type nopObserver struct{}

func (nopObserver) OnEvent(Event) {}
