package pagination

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Sternrassler/photofeed/pkg/client"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "server error", err: &client.APIError{StatusCode: 500, ErrorClass: client.ErrorClassServer}, want: KindServer},
		{name: "client error", err: &client.APIError{StatusCode: 404, ErrorClass: client.ErrorClassClient}, want: KindServer},
		{name: "rate limited", err: &client.APIError{StatusCode: 429, ErrorClass: client.ErrorClassRateLimit}, want: KindServer},
		{name: "decode", err: &client.APIError{StatusCode: 200, ErrorClass: client.ErrorClassDecode}, want: KindDecode},
		{name: "wrapped decode", err: fmt.Errorf("page 2: %w", &client.APIError{ErrorClass: client.ErrorClassDecode}), want: KindDecode},
		{name: "retry exhausted keeps class", err: fmt.Errorf("%w: %w", client.ErrRetryExhausted, &client.APIError{StatusCode: 502, ErrorClass: client.ErrorClassServer}), want: KindServer},
		{name: "plain error", err: errors.New("dial tcp: connection refused"), want: KindNetwork},
		{name: "deadline", err: context.DeadlineExceeded, want: KindNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetchError(t *testing.T) {
	cause := &client.APIError{StatusCode: 503, ErrorClass: client.ErrorClassServer, Message: "Service Unavailable"}
	fe := newFetchError(4, cause)

	if fe.Page != 4 || fe.Kind != KindServer || fe.StatusCode != 503 {
		t.Errorf("newFetchError = %+v", fe)
	}
	if !strings.Contains(fe.Error(), "page 4: server failure (status 503)") {
		t.Errorf("Error() = %q", fe.Error())
	}

	var apiErr *client.APIError
	if !errors.As(fe, &apiErr) || apiErr != cause {
		t.Error("FetchError does not unwrap to the cause")
	}

	network := newFetchError(1, context.Canceled)
	if network.StatusCode != 0 || network.Error() != "page 1: network failure: context canceled" {
		t.Errorf("Error() = %q", network.Error())
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig invalid: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "negative page size", modify: func(c *Config) { c.PageSize = -1 }},
		{name: "negative margin", modify: func(c *Config) { c.LookAheadMargin = -5 }},
		{name: "negative estimate", modify: func(c *Config) { c.InitialCountEstimate = -1 }},
		{name: "negative concurrency", modify: func(c *Config) { c.MaxConcurrency = -2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected error but got nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.PageSize != 25 || cfg.LookAheadMargin != 10 || cfg.InitialCountEstimate != 200 {
		t.Errorf("DefaultConfig() = %+v", cfg)
	}
}

func TestObserverFunc(t *testing.T) {
	var got Event
	var observer Observer = ObserverFunc(func(e Event) { got = e })
	observer.OnEvent(TotalCountResolved{Count: 9})

	if resolved, ok := got.(TotalCountResolved); !ok || resolved.Count != 9 {
		t.Errorf("got %+v", got)
	}
}
