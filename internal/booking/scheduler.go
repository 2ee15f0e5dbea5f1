// Package booking decides whether a requested appointment fits on the
// calendar and proposes same-day alternatives when it does not.
package booking

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rgarzadev/citabot/internal/calendar"
	"github.com/rgarzadev/citabot/internal/timeparse"
	"github.com/rgarzadev/citabot/pkg/logging"
)

var bookingTracer = otel.Tracer("citabot.internal.booking")

// Outcome is the result of one booking attempt.
type Outcome struct {
	// Booked is true when the event was created.
	Booked bool
	// Display is the confirmed start rendered for the user, set when Booked.
	Display string
	// Alternatives holds up to MaxAlternatives free same-day start times in
	// ascending order, set on conflict. Empty means no availability that day.
	Alternatives []string
}

// Scheduler checks conflicts against the calendar gateway and creates events.
type Scheduler struct {
	gateway  calendar.Gateway
	resolver *timeparse.Resolver
	duration time.Duration
	step     time.Duration
	maxAlts  int
	logger   *logging.Logger
}

// NewScheduler wires a scheduler. duration is the fixed appointment length,
// step the granularity used when scanning for alternatives.
func NewScheduler(gateway calendar.Gateway, resolver *timeparse.Resolver, duration, step time.Duration, maxAlternatives int, logger *logging.Logger) *Scheduler {
	if gateway == nil {
		panic("booking: calendar gateway required")
	}
	if resolver == nil {
		panic("booking: time resolver required")
	}
	if duration <= 0 {
		duration = 30 * time.Minute
	}
	if step <= 0 {
		step = 15 * time.Minute
	}
	if maxAlternatives <= 0 {
		maxAlternatives = 5
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		gateway:  gateway,
		resolver: resolver,
		duration: duration,
		step:     step,
		maxAlts:  maxAlternatives,
		logger:   logger,
	}
}

// Book attempts to place an appointment at startUTC. The conversation key
// seeds the event's idempotency id so a crash-retry cannot double-book.
func (s *Scheduler) Book(ctx context.Context, conversationKey, name, service string, startUTC time.Time) (*Outcome, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("citabot.conversation_key", conversationKey),
		attribute.String("citabot.start_utc", startUTC.Format(time.RFC3339)),
	)

	// One busy fetch covers both the conflict check and the same-day scan.
	windowStart, windowEnd := s.resolver.DayWindow(startUTC)
	busy, err := s.gateway.ListBusy(ctx, windowStart, windowEnd)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("booking: conflict check: %w", err)
	}

	if s.hasConflict(busy, startUTC) {
		alts := s.freeSlots(busy, windowStart, windowEnd)
		s.logger.Info("requested slot busy",
			"start_utc", startUTC.Format(time.RFC3339),
			"alternatives", len(alts),
		)
		return &Outcome{Alternatives: alts}, nil
	}

	ev := calendar.Event{
		Summary:     "Cita: " + name,
		Description: fmt.Sprintf("Servicio: %s\nAgendado por el asistente de WhatsApp.", service),
		Start:       startUTC,
		End:         startUTC.Add(s.duration),
		Key:         calendar.EventKey(conversationKey, startUTC),
	}
	eventID, err := s.gateway.InsertEvent(ctx, ev)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("booking: insert event: %w", err)
	}
	s.logger.Info("appointment booked",
		"event_id", eventID,
		"start_utc", startUTC.Format(time.RFC3339),
	)
	return &Outcome{Booked: true, Display: s.resolver.FormatLocal(startUTC)}, nil
}

func (s *Scheduler) hasConflict(busy []calendar.Interval, start time.Time) bool {
	end := start.Add(s.duration)
	for _, iv := range busy {
		if iv.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// freeSlots scans the business-hours window in fixed steps and collects
// starts whose full appointment fits before closing with no busy overlap.
func (s *Scheduler) freeSlots(busy []calendar.Interval, windowStart, windowEnd time.Time) []string {
	var alts []string
	for c := windowStart; !c.Add(s.duration).After(windowEnd); c = c.Add(s.step) {
		if s.hasConflict(busy, c) {
			continue
		}
		alts = append(alts, s.resolver.FormatLocalTime(c))
		if len(alts) == s.maxAlts {
			break
		}
	}
	return alts
}
