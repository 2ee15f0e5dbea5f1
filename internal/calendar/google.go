package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rgarzadev/citabot/pkg/logging"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleGateway implements Gateway against the Google Calendar v3 API.
type GoogleGateway struct {
	svc        *gcal.Service
	calendarID string
	logger     *logging.Logger
}

// NewGoogleGateway builds a gateway for one calendar. With an empty
// credentials file it falls back to application default credentials.
func NewGoogleGateway(ctx context.Context, calendarID, credentialsFile string, logger *logging.Logger, extra ...option.ClientOption) (*GoogleGateway, error) {
	if calendarID == "" {
		calendarID = "primary"
	}
	if logger == nil {
		logger = logging.Default()
	}
	opts := make([]option.ClientOption, 0, len(extra)+2)
	opts = append(opts, option.WithScopes(gcal.CalendarScope))
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, extra...)

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar: create service: %w", err)
	}
	return &GoogleGateway{svc: svc, calendarID: calendarID, logger: logger}, nil
}

var _ Gateway = (*GoogleGateway)(nil)

// ListBusy returns busy intervals overlapping [t0, t1) via a free/busy query.
func (g *GoogleGateway) ListBusy(ctx context.Context, t0, t1 time.Time) ([]Interval, error) {
	req := &gcal.FreeBusyRequest{
		TimeMin: t0.UTC().Format(time.RFC3339),
		TimeMax: t1.UTC().Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: g.calendarID}},
	}
	resp, err := g.svc.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		g.logger.Error("freebusy query failed", "error", err, "calendar_id", g.calendarID)
		return nil, fmt.Errorf("%w: freebusy query: %v", ErrUnavailable, err)
	}

	cal, ok := resp.Calendars[g.calendarID]
	if !ok {
		return nil, fmt.Errorf("%w: calendar %s missing from freebusy response", ErrUnavailable, g.calendarID)
	}
	intervals := make([]Interval, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			continue
		}
		intervals = append(intervals, Interval{Start: start.UTC(), End: end.UTC()})
	}
	return intervals, nil
}

// InsertEvent creates the event. A 409 from Google means a previous attempt
// with the same key already landed, which counts as success.
func (g *GoogleGateway) InsertEvent(ctx context.Context, ev Event) (string, error) {
	event := &gcal.Event{
		Id:          ev.Key,
		Summary:     ev.Summary,
		Description: ev.Description,
		Start: &gcal.EventDateTime{
			DateTime: ev.Start.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
		End: &gcal.EventDateTime{
			DateTime: ev.End.UTC().Format(time.RFC3339),
			TimeZone: "UTC",
		},
	}
	created, err := g.svc.Events.Insert(g.calendarID, event).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 409 {
			g.logger.Info("event already exists, treating insert as idempotent success", "event_key", ev.Key)
			return ev.Key, nil
		}
		g.logger.Error("event insert failed", "error", err, "calendar_id", g.calendarID)
		return "", fmt.Errorf("%w: insert event: %v", ErrUnavailable, err)
	}
	return created.Id, nil
}
