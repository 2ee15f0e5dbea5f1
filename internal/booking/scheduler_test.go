package booking

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rgarzadev/citabot/internal/calendar"
	"github.com/rgarzadev/citabot/internal/timeparse"
	"github.com/rgarzadev/citabot/pkg/logging"
)

type fakeGateway struct {
	busy       []calendar.Interval
	listErr    error
	insertErr  error
	inserted   []calendar.Event
	listCalls  int
	lastWindow [2]time.Time
}

func (f *fakeGateway) ListBusy(_ context.Context, t0, t1 time.Time) ([]calendar.Interval, error) {
	f.listCalls++
	f.lastWindow = [2]time.Time{t0, t1}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.busy, nil
}

func (f *fakeGateway) InsertEvent(_ context.Context, ev calendar.Event) (string, error) {
	if f.insertErr != nil {
		return "", f.insertErr
	}
	f.inserted = append(f.inserted, ev)
	return ev.Key, nil
}

func newTestScheduler(t *testing.T, gw *fakeGateway) (*Scheduler, *time.Location) {
	t.Helper()
	loc, err := time.LoadLocation("America/Monterrey")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	resolver := timeparse.NewResolver(loc, 9, 18)
	return NewScheduler(gw, resolver, 30*time.Minute, 15*time.Minute, 5, logging.New("error")), loc
}

func TestBookFreeSlot(t *testing.T) {
	gw := &fakeGateway{}
	s, loc := newTestScheduler(t, gw)
	start := time.Date(2025, time.July, 3, 16, 0, 0, 0, loc).UTC()

	out, err := s.Book(context.Background(), "whatsapp:+5218110001111", "Ana Robles", "limpieza", start)
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if !out.Booked {
		t.Fatal("expected booking to succeed")
	}
	if !strings.Contains(out.Display, "Jueves 03 de julio") {
		t.Errorf("confirmation display %q missing local date", out.Display)
	}
	if len(gw.inserted) != 1 {
		t.Fatalf("expected 1 inserted event, got %d", len(gw.inserted))
	}
	ev := gw.inserted[0]
	if ev.Summary != "Cita: Ana Robles" {
		t.Errorf("unexpected summary %q", ev.Summary)
	}
	if !strings.Contains(ev.Description, "limpieza") {
		t.Errorf("description %q missing service", ev.Description)
	}
	if !ev.End.Equal(start.Add(30 * time.Minute)) {
		t.Errorf("event end %s, want start+30m", ev.End)
	}
	if ev.Key != calendar.EventKey("whatsapp:+5218110001111", start) {
		t.Error("event key is not the deterministic conversation key")
	}
}

func TestBookConflictSuggestsSameDayAlternatives(t *testing.T) {
	loc, _ := time.LoadLocation("America/Monterrey")
	day := func(h, m int) time.Time {
		return time.Date(2025, time.July, 3, h, m, 0, 0, loc).UTC()
	}
	gw := &fakeGateway{busy: []calendar.Interval{
		{Start: day(16, 0), End: day(16, 30)}, // the requested slot
		{Start: day(9, 0), End: day(12, 0)},   // whole morning blocked
	}}
	s, _ := newTestScheduler(t, gw)

	out, err := s.Book(context.Background(), "whatsapp:+5218110001111", "Ana", "limpieza", day(16, 0))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if out.Booked {
		t.Fatal("expected a conflict")
	}
	if len(out.Alternatives) != 5 {
		t.Fatalf("expected 5 alternatives, got %d: %v", len(out.Alternatives), out.Alternatives)
	}
	// First free slot after the blocked morning is 12:00 PM local.
	if out.Alternatives[0] != "12:00 PM" {
		t.Errorf("first alternative = %q, want 12:00 PM", out.Alternatives[0])
	}
	wantOrder := []string{"12:00 PM", "12:15 PM", "12:30 PM", "12:45 PM", "01:00 PM"}
	for i, want := range wantOrder {
		if out.Alternatives[i] != want {
			t.Errorf("alternative[%d] = %q, want %q", i, out.Alternatives[i], want)
		}
	}
	if gw.listCalls != 1 {
		t.Errorf("busy intervals fetched %d times, want once per attempt", gw.listCalls)
	}
	if len(gw.inserted) != 0 {
		t.Error("no event should be created on conflict")
	}
}

func TestBookConflictWithFullDay(t *testing.T) {
	loc, _ := time.LoadLocation("America/Monterrey")
	dayStart := time.Date(2025, time.July, 3, 0, 0, 0, 0, loc).UTC()
	gw := &fakeGateway{busy: []calendar.Interval{
		{Start: dayStart, End: dayStart.Add(24 * time.Hour)},
	}}
	s, _ := newTestScheduler(t, gw)

	start := time.Date(2025, time.July, 3, 16, 0, 0, 0, loc).UTC()
	out, err := s.Book(context.Background(), "key", "Ana", "limpieza", start)
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if out.Booked {
		t.Fatal("expected a conflict")
	}
	if len(out.Alternatives) != 0 {
		t.Errorf("fully busy day must return zero alternatives, got %v", out.Alternatives)
	}
}

func TestBookLastSlotMustFitBeforeClosing(t *testing.T) {
	loc, _ := time.LoadLocation("America/Monterrey")
	day := func(h, m int) time.Time {
		return time.Date(2025, time.July, 3, h, m, 0, 0, loc).UTC()
	}
	// Everything busy except the final half hour before closing.
	gw := &fakeGateway{busy: []calendar.Interval{
		{Start: day(9, 0), End: day(17, 30)},
		{Start: day(16, 0), End: day(16, 30)},
	}}
	s, _ := newTestScheduler(t, gw)

	out, err := s.Book(context.Background(), "key", "Ana", "limpieza", day(16, 0))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if len(out.Alternatives) != 1 || out.Alternatives[0] != "05:30 PM" {
		t.Errorf("expected only the 05:30 PM slot, got %v", out.Alternatives)
	}
}

func TestBookCalendarUnavailable(t *testing.T) {
	gw := &fakeGateway{listErr: calendar.ErrUnavailable}
	s, loc := newTestScheduler(t, gw)
	start := time.Date(2025, time.July, 3, 16, 0, 0, 0, loc).UTC()

	_, err := s.Book(context.Background(), "key", "Ana", "limpieza", start)
	if !errors.Is(err, calendar.ErrUnavailable) {
		t.Fatalf("expected wrapped ErrUnavailable, got %v", err)
	}
}

func TestBookInsertFailure(t *testing.T) {
	gw := &fakeGateway{insertErr: calendar.ErrUnavailable}
	s, loc := newTestScheduler(t, gw)
	start := time.Date(2025, time.July, 3, 16, 0, 0, 0, loc).UTC()

	_, err := s.Book(context.Background(), "key", "Ana", "limpieza", start)
	if !errors.Is(err, calendar.ErrUnavailable) {
		t.Fatalf("expected wrapped ErrUnavailable, got %v", err)
	}
}
