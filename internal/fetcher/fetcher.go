package fetcher

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrNotFound reports that no candidate location produced a document.
var ErrNotFound = errors.New("fetcher: no report found")

// Document is a raw report downloaded for one date.
type Document struct {
	Date time.Time
	URL  string
	Body []byte
}

// Client performs a single GET and returns the status code and body.
// Transport failures and timeouts are returned as errors.
type Client interface {
	Get(ctx context.Context, url string, header http.Header) (int, []byte, error)
}

// Acquirer retrieves the report published for a date.
type Acquirer interface {
	Acquire(ctx context.Context, date time.Time) (Document, error)
}
