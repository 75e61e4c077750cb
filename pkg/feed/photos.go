package feed

import (
	"context"
	"fmt"

	"github.com/Sternrassler/photofeed/pkg/client"
	"github.com/Sternrassler/photofeed/pkg/pagination"
)

// PhotoSource is the part of *client.Client the feed pages through.
type PhotoSource interface {
	FetchPage(ctx context.Context, resource string, pageNumber, pageSize int) (*client.PhotoPage, error)
}

// PhotoPages turns photo records into the URLs of one rendition.
type PhotoPages struct {
	Source PhotoSource
	Size   client.Size
}

// FetchPage implements pagination.PageFetcher.
func (p PhotoPages) FetchPage(ctx context.Context, resource string, pageNumber, pageSize int) (pagination.Page[string], error) {
	page, err := p.Source.FetchPage(ctx, resource, pageNumber, pageSize)
	if err != nil {
		return pagination.Page[string]{}, err
	}

	urls := make([]string, 0, len(page.Photos))
	for _, photo := range page.Photos {
		url := photo.URLs.Pick(p.Size)
		if url == "" {
			return pagination.Page[string]{}, &client.APIError{
				StatusCode: 200,
				ErrorClass: client.ErrorClassDecode,
				Message:    fmt.Sprintf("photo %q has no %s url", photo.ID, p.Size),
			}
		}
		urls = append(urls, url)
	}
	return pagination.Page[string]{Items: urls, Total: page.Total}, nil
}

// StatsCounter resolves the size of the all-photos feed from the stats resource.
func StatsCounter(c *client.Client) Counter {
	return CounterFunc(c.TotalPhotos)
}
