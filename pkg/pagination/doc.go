// Package pagination loads pages of a remote collection into a sparse
// paged.Collection on demand and ahead of the scroll position.
//
// A Coordinator guarantees at most one outstanding fetch per page and
// applies completions back to the collection. It is driven by a single owner
// goroutine: fetches run concurrently, but their results arrive on
// Completions() and only take effect when the owner passes them to Apply.
// Neither the coordinator nor the collection needs locks.
//
// Example usage:
//
//	collection, _ := paged.New[string](200, 25)
//	coord, _ := pagination.NewCoordinator(collection, fetcher, "/photos",
//		pagination.DefaultConfig(), observer)
//	defer coord.Close()
//
//	coord.Prefetch(row)
//	for {
//		select {
//		case comp := <-coord.Completions():
//			coord.Apply(comp)
//		case <-ctx.Done():
//			return
//		}
//	}
//
// Refresh is CancelAll followed by a collection Reset. CancelAll bumps the
// generation; completions issued under an older generation are discarded by
// Apply without touching the collection or emitting events.
//
// Internal page indexes are 0-based. The fetcher receives 1-based request
// page numbers.
package pagination
