// Package calendar defines the gateway to the shared appointment calendar.
// Everything crossing this boundary is an absolute UTC instant.
package calendar

import (
	"context"
	"crypto/sha1"
	"encoding/base32"
	"errors"
	"strings"
	"time"
)

// ErrUnavailable wraps transport or auth failures talking to the calendar
// provider. Callers surface a generic message and must not clear
// conversation state when they see it.
var ErrUnavailable = errors.New("calendar: service unavailable")

// Interval is a busy time range on the calendar, in UTC.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [start, end) intersects the interval.
func (iv Interval) Overlaps(start, end time.Time) bool {
	return iv.Start.Before(end) && iv.End.After(start)
}

// Event is an appointment to create. Key is a caller-supplied idempotency
// identifier so a retried insert cannot double-book.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Key         string
}

// Gateway is the external calendar surface used by the booking layer.
type Gateway interface {
	ListBusy(ctx context.Context, t0, t1 time.Time) ([]Interval, error)
	InsertEvent(ctx context.Context, ev Event) (string, error)
}

var keyEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// EventKey derives a deterministic event identifier from the conversation
// key and start instant. The result uses Google's event id charset
// (lowercase base32hex), so the same booking attempt always maps to the
// same calendar event.
func EventKey(conversationKey string, start time.Time) string {
	sum := sha1.Sum([]byte(conversationKey + "|" + start.UTC().Format(time.RFC3339)))
	return strings.ToLower(keyEncoding.EncodeToString(sum[:]))
}
