package client

import (
	"net/url"
	"strings"
)

// Sort is the order_by value accepted by list resources.
type Sort string

const (
	SortLatest  Sort = "latest"
	SortOldest  Sort = "oldest"
	SortPopular Sort = "popular"
)

// Valid reports whether s is one of the known orders. The empty Sort is valid
// and means "server default".
func (s Sort) Valid() bool {
	switch s {
	case "", SortLatest, SortOldest, SortPopular:
		return true
	default:
		return false
	}
}

// Resource paths served by the photo API.
const (
	PhotosPath        = "/photos"
	CuratedPhotosPath = "/photos/curated"
	SearchPhotosPath  = "/search/photos"
	StatsTotalPath    = "/stats/total"
)

// UserPhotosPath returns the photos uploaded by username.
func UserPhotosPath(username string) string {
	return "/users/" + url.PathEscape(username) + "/photos"
}

// UserLikesPath returns the photos liked by username.
func UserLikesPath(username string) string {
	return "/users/" + url.PathEscape(username) + "/likes"
}

// CollectionPhotosPath returns the photos of a collection.
func CollectionPhotosPath(id string) string {
	return "/collections/" + url.PathEscape(id) + "/photos"
}

// SearchPath returns the search resource for query, ready to be paged.
func SearchPath(query string) string {
	return SearchPhotosPath + "?" + url.Values{"query": []string{query}}.Encode()
}

// splitResource separates a resource into its path and any query it carries.
func splitResource(resource string) (string, url.Values, error) {
	path, rawQuery, _ := strings.Cut(resource, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", nil, err
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path, query, nil
}

func isSearch(path string) bool {
	return strings.HasPrefix(path, "/search/")
}
