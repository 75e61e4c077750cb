package client

import (
	"time"
)

// PhotoURLs holds the rendition URLs of a photo.
type PhotoURLs struct {
	Raw     string `json:"raw"`
	Full    string `json:"full"`
	Regular string `json:"regular"`
	Small   string `json:"small"`
	Thumb   string `json:"thumb"`
}

// Size names one rendition in PhotoURLs.
type Size string

const (
	SizeRaw     Size = "raw"
	SizeFull    Size = "full"
	SizeRegular Size = "regular"
	SizeSmall   Size = "small"
	SizeThumb   Size = "thumb"
)

// Valid reports whether s names a known rendition.
func (s Size) Valid() bool {
	switch s {
	case SizeRaw, SizeFull, SizeRegular, SizeSmall, SizeThumb:
		return true
	default:
		return false
	}
}

// Pick returns the URL for size s, or "" for an unknown size.
func (u PhotoURLs) Pick(s Size) string {
	switch s {
	case SizeRaw:
		return u.Raw
	case SizeFull:
		return u.Full
	case SizeRegular:
		return u.Regular
	case SizeSmall:
		return u.Small
	case SizeThumb:
		return u.Thumb
	default:
		return ""
	}
}

// User is the uploader embedded in a photo record.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Photo is one record of a photo list response.
type Photo struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Color       string    `json:"color"`
	Likes       int       `json:"likes"`
	Description string    `json:"description"`
	URLs        PhotoURLs `json:"urls"`
	User        User      `json:"user"`
}

// PhotoPage is one page of photos. Total is the size of the whole collection,
// or -1 when the response did not say.
type PhotoPage struct {
	Photos []Photo
	Total  int
}

// searchResponse is the envelope of search resources.
type searchResponse struct {
	Total      int     `json:"total"`
	TotalPages int     `json:"total_pages"`
	Results    []Photo `json:"results"`
}

// statsTotal is the body of /stats/total.
type statsTotal struct {
	Photos int `json:"photos"`
}

// errorPayload is the body of a failed request.
type errorPayload struct {
	Errors []string `json:"errors"`
}
