package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rgarzadev/citabot/internal/booking"
	"github.com/rgarzadev/citabot/internal/llm"
	"github.com/rgarzadev/citabot/internal/observability/metrics"
	"github.com/rgarzadev/citabot/internal/timeparse"
	"github.com/rgarzadev/citabot/pkg/logging"
)

var engineTracer = otel.Tracer("citabot.internal.conversation")

// User-facing replies. The assistant speaks Spanish.
const (
	replyAskName         = "¡Perfecto! ¿Podrías darme tu nombre completo?"
	replyAskService      = "Gracias, %s. ¿Qué tipo de servicio deseas? (ej: limpieza, revisión, dolor de muela, etc.)"
	replyAskDate         = "¿En qué día y hora deseas la cita? Responde, por ejemplo: '3 julio 4pm'"
	replyBadDate         = "❌ No pude entender la fecha. Por favor usa el formato: '3 julio 4pm'"
	replyChecking        = "Perfecto, estoy revisando disponibilidad…"
	replyConfirmRollover = "⚠️ Esa fecha ya pasó este año. ¿Agendo el %s? (sí/no)"
	replyDeclined        = "❌ Entendido. No se agendó la cita. Si deseas intentarlo con otra fecha, escribe 'agendar cita'."
	replyBooked          = "✅ Cita agendada para %s el %s. ¡Gracias!"
	replyConflict        = "⚠️ Ese horario ya está ocupado. Opciones el mismo día:%s"
	replyNoAvailability  = "❌ Lo siento, no hay horarios disponibles ese día. Intenta con otra fecha."
	replyCalendarDown    = "⚠️ No pude revisar la agenda en este momento. Intenta de nuevo en unos minutos."
	replyFallback        = "Por el momento no puedo responder eso. Si deseas agendar una cita, escribe 'agendar cita'."
)

// Store is the durable conversation state and transcript surface.
type Store interface {
	GetState(ctx context.Context, key string) (*State, error)
	PutState(ctx context.Context, key string, st *State) error
	AppendMessage(ctx context.Context, key, direction, body string) error
	RecentMessages(ctx context.Context, key string, limit int) ([]Message, error)
}

// Booker attempts to place an appointment on the calendar.
type Booker interface {
	Book(ctx context.Context, conversationKey, name, service string, startUTC time.Time) (*booking.Outcome, error)
}

// SlotExtractor is the best-effort NLU over the recent transcript.
type SlotExtractor interface {
	ExtractSlots(ctx context.Context, transcript string) llm.Slots
}

// Responder answers messages outside the booking flow.
type Responder interface {
	Complete(ctx context.Context, userText string) (string, error)
}

// Options tune engine behavior.
type Options struct {
	// IdleTimeout expires stale sessions; expired state is treated as empty.
	IdleTimeout time.Duration
	// TranscriptLimit bounds how much history feeds the slot extractor.
	TranscriptLimit int
	// RequireBookingKeyword restores the early keyword gate: without it the
	// flow starts on any message once no name is on file.
	RequireBookingKeyword bool
	// Metrics receives booking outcomes. Optional; nil disables counting.
	Metrics *metrics.WebhookMetrics
}

// Engine advances one conversation per inbound message. Turns for the same
// user key must be serialized by the caller.
type Engine struct {
	store     Store
	booker    Booker
	resolver  *timeparse.Resolver
	extractor SlotExtractor
	responder Responder
	opts      Options
	logger    *logging.Logger
	now       func() time.Time
}

// NewEngine wires the dialogue engine. extractor and responder may be nil;
// the explicit step-by-step flow works without them.
func NewEngine(store Store, booker Booker, resolver *timeparse.Resolver, extractor SlotExtractor, responder Responder, opts Options, logger *logging.Logger) *Engine {
	if store == nil {
		panic("conversation: store required")
	}
	if booker == nil {
		panic("conversation: booker required")
	}
	if resolver == nil {
		panic("conversation: time resolver required")
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 120 * time.Minute
	}
	if opts.TranscriptLimit <= 0 {
		opts.TranscriptLimit = 6
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		store:     store,
		booker:    booker,
		resolver:  resolver,
		extractor: extractor,
		responder: responder,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleMessage runs one full turn: load state, log the inbound message,
// advance the state machine, persist, and return the reply text.
func (e *Engine) HandleMessage(ctx context.Context, key, body string) (string, error) {
	ctx, span := engineTracer.Start(ctx, "conversation.turn")
	defer span.End()
	span.SetAttributes(attribute.String("citabot.conversation_key", key))

	now := e.now().UTC()
	body = strings.TrimSpace(body)

	st, err := e.store.GetState(ctx, key)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("conversation: load state: %w", err)
	}
	if st == nil {
		st = &State{}
	}
	st.normalize()
	if st.Expired(now, e.opts.IdleTimeout) {
		e.logger.Info("session expired, starting fresh", "key", key)
		st.Reset()
	}

	if err := e.store.AppendMessage(ctx, key, "in", body); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("conversation: log inbound: %w", err)
	}

	reply := e.advance(ctx, key, st, body, now)

	st.LastActivity = now
	if err := e.store.PutState(ctx, key, st); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("conversation: persist state: %w", err)
	}
	if err := e.store.AppendMessage(ctx, key, "out", reply); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("conversation: log outbound: %w", err)
	}
	return reply, nil
}

// advance applies the transition rules in fixed precedence order and
// returns exactly one reply.
func (e *Engine) advance(ctx context.Context, key string, st *State, body string, now time.Time) string {
	// 1. Pending rollover confirmation takes priority over everything.
	if st.Awaiting == AwaitingDateConfirmation {
		if !isAffirmative(body) {
			st.Reset()
			return replyDeclined
		}
		st.AppointmentUTC = st.SuggestedUTC
		st.SuggestedUTC = nil
		st.Awaiting = AwaitingNone
		// Promotion may complete the booking in this same turn.
	}

	// 2. All fields confirmed: attempt the booking.
	if st.Ready() {
		return e.book(ctx, key, st)
	}

	// 3. Opportunistic extraction fills unset fields only.
	e.mergeExtracted(ctx, key, st, now)

	// 4-7. Dispatch on the pending-input marker.
	switch st.Awaiting {
	case AwaitingNone:
		if st.Name == "" {
			if e.opts.RequireBookingKeyword && !looksLikeBookingRequest(body) {
				return e.respondGeneral(ctx, body)
			}
			st.Awaiting = AwaitingName
			return replyAskName
		}
		// The extractor already produced partial fields; continue from the
		// first gap instead of re-asking for the name.
		return e.continueFlow(ctx, key, st)

	case AwaitingName:
		if st.Name == "" {
			st.Name = body
		}
		return e.continueFlow(ctx, key, st)

	case AwaitingService:
		if st.Service == "" {
			st.Service = body
		}
		return e.continueFlow(ctx, key, st)

	case AwaitingDateTime:
		res, err := e.resolver.Resolve(body, now)
		if err != nil {
			// State stays put; the user retries in the same step.
			return replyBadDate
		}
		if res.Rollover {
			st.SuggestedUTC = &res.UTC
			st.Awaiting = AwaitingDateConfirmation
			return fmt.Sprintf(replyConfirmRollover, e.resolver.FormatLocal(res.UTC))
		}
		st.AppointmentUTC = &res.UTC
		st.Awaiting = AwaitingNone
		return replyChecking
	}

	// Unreachable given the dispatch above; answer something sane anyway.
	st.Awaiting = AwaitingName
	return replyAskName
}

// continueFlow prompts for the first missing field, or books when nothing
// is missing. Fields already filled by the extractor are never re-asked.
func (e *Engine) continueFlow(ctx context.Context, key string, st *State) string {
	switch {
	case st.Name == "":
		st.Awaiting = AwaitingName
		return replyAskName
	case st.Service == "":
		st.Awaiting = AwaitingService
		return fmt.Sprintf(replyAskService, st.Name)
	case st.AppointmentUTC == nil:
		st.Awaiting = AwaitingDateTime
		return replyAskDate
	default:
		return e.book(ctx, key, st)
	}
}

// book runs the conflict check and either confirms, proposes alternatives,
// or reports the calendar as unavailable. On conflict the confirmed name
// and service are preserved so the user only re-sends a date.
func (e *Engine) book(ctx context.Context, key string, st *State) string {
	outcome, err := e.booker.Book(ctx, key, st.Name, st.Service, *st.AppointmentUTC)
	if err != nil {
		// Calendar trouble must not wipe the user's progress.
		e.logger.Error("booking attempt failed", "error", err, "key", key)
		e.opts.Metrics.ObserveBooking("error")
		return replyCalendarDown
	}

	if outcome.Booked {
		e.opts.Metrics.ObserveBooking("booked")
		name := st.Name
		st.Reset()
		return fmt.Sprintf(replyBooked, name, outcome.Display)
	}

	st.AppointmentUTC = nil
	st.Awaiting = AwaitingDateTime
	if len(outcome.Alternatives) == 0 {
		e.opts.Metrics.ObserveBooking("no_availability")
		return replyNoAvailability
	}
	e.opts.Metrics.ObserveBooking("conflict")
	return fmt.Sprintf(replyConflict, "\n- "+strings.Join(outcome.Alternatives, "\n- "))
}

// mergeExtracted asks the LLM for best-guess slots over the recent
// transcript and adopts only fields that are still unset. Failures are
// silent: the explicit prompts remain the source of truth.
func (e *Engine) mergeExtracted(ctx context.Context, key string, st *State, now time.Time) {
	if e.extractor == nil {
		return
	}
	history, err := e.store.RecentMessages(ctx, key, e.opts.TranscriptLimit)
	if err != nil {
		e.logger.Debug("transcript load for extraction failed", "error", err)
		return
	}
	slots := e.extractor.ExtractSlots(ctx, formatTranscript(history))

	if st.Name == "" && slots.Name != nil {
		st.Name = *slots.Name
	}
	if st.Service == "" && slots.Service != nil {
		st.Service = *slots.Service
	}
	if st.AppointmentUTC == nil && st.SuggestedUTC == nil && st.Awaiting != AwaitingDateTime && slots.DateText != nil {
		res, err := e.resolver.Resolve(*slots.DateText, now)
		if err == nil && !res.Rollover {
			// Rollover candidates need explicit confirmation and are only
			// offered by the step-by-step date branch.
			st.AppointmentUTC = &res.UTC
		}
	}
}

func (e *Engine) respondGeneral(ctx context.Context, body string) string {
	if e.responder == nil {
		return replyFallback
	}
	answer, err := e.responder.Complete(ctx, body)
	if err != nil || answer == "" {
		e.logger.Warn("general responder failed", "error", err)
		return replyFallback
	}
	return answer
}

func formatTranscript(history []Message) string {
	var b strings.Builder
	for _, msg := range history {
		role := "usuario"
		if msg.Direction == "out" {
			role = "asistente"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(msg.Body)
		b.WriteString("\n")
	}
	return b.String()
}

var affirmativeTokens = map[string]struct{}{
	"si": {}, "yes": {}, "claro": {}, "ok": {}, "okay": {}, "dale": {},
}

// isAffirmative matches localized yes tokens; anything else is a no.
func isAffirmative(body string) bool {
	folded := strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u").
		Replace(strings.ToLower(body))
	for _, word := range strings.FieldsFunc(folded, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '¡'
	}) {
		if _, ok := affirmativeTokens[word]; ok {
			return true
		}
	}
	return false
}

// looksLikeBookingRequest implements the optional keyword gate from the
// first deployments: both words must appear, any casing.
func looksLikeBookingRequest(body string) bool {
	folded := strings.ToLower(body)
	return strings.Contains(folded, "cita") && strings.Contains(folded, "agendar")
}
