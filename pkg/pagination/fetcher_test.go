package pagination

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// request is one FetchPage call waiting for the test to answer it.
type request struct {
	ctx        context.Context
	resource   string
	pageNumber int
	pageSize   int
	reply      chan reply
}

type reply struct {
	page Page[string]
	err  error
}

func (r *request) succeed(items []string, total int) {
	r.reply <- reply{page: Page[string]{Items: items, Total: total}}
}

func (r *request) fail(err error) {
	r.reply <- reply{err: err}
}

// scriptedFetcher hands every call to the test through requests.
type scriptedFetcher struct {
	requests chan *request
	// ignoreCancel simulates a transport that cannot be cancelled.
	ignoreCancel bool
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{requests: make(chan *request, 16)}
}

func (f *scriptedFetcher) FetchPage(ctx context.Context, resource string, pageNumber, pageSize int) (Page[string], error) {
	req := &request{
		ctx:        ctx,
		resource:   resource,
		pageNumber: pageNumber,
		pageSize:   pageSize,
		reply:      make(chan reply, 1),
	}
	if err := ctx.Err(); err != nil {
		return Page[string]{}, err
	}
	select {
	case f.requests <- req:
	case <-ctx.Done():
		return Page[string]{}, ctx.Err()
	}

	if f.ignoreCancel {
		r := <-req.reply
		return r.page, r.err
	}
	select {
	case r := <-req.reply:
		return r.page, r.err
	case <-ctx.Done():
		return Page[string]{}, ctx.Err()
	}
}

func nextRequest(t *testing.T, f *scriptedFetcher) *request {
	t.Helper()
	select {
	case req := <-f.requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a fetch")
		return nil
	}
}

func expectNoRequest(t *testing.T, f *scriptedFetcher) {
	t.Helper()
	select {
	case req := <-f.requests:
		t.Fatalf("unexpected fetch of request page %d", req.pageNumber)
	case <-time.After(50 * time.Millisecond):
	}
}

// applyNext waits for one completion and applies it.
func applyNext[T any](t *testing.T, c *Coordinator[T]) (Completion[T], bool) {
	t.Helper()
	select {
	case comp := <-c.Completions():
		return comp, c.Apply(comp)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a completion")
		return Completion[T]{}, false
	}
}

// recorder collects events. It is only touched by the test goroutine.
type recorder struct {
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.events = append(r.events, e)
}

func (r *recorder) reset() {
	r.events = nil
}

func itemsFor(page, pageSize, n int) []string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("item-%d", page*pageSize+i)
	}
	return items
}
