package harvest

import (
	"context"
	"time"
)

// Fetcher performs a single GET and returns whatever the server answered.
// Non-2xx responses are returned as a Page, not as an error.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// LinkFinder discovers same-site links in an HTML document.
type LinkFinder interface {
	SameSiteLinks(pageURL string, body []byte, limit int) ([]string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Publisher pushes the run summary to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Recorder receives counters about the run.
type Recorder interface {
	ObserveRow(status Status)
	ObserveFetch(ok bool)
	ObserveEmails(n int)
	ObserveCheckpointFailure(tableName string)
	ObserveRun(reason StopReason, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRow(Status) {}
func (nopRecorder) ObserveFetch(bool) {}
func (nopRecorder) ObserveEmails(int) {}
func (nopRecorder) ObserveCheckpointFailure(string) {}
func (nopRecorder) ObserveRun(StopReason, time.Duration) {}
