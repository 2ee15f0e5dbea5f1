// Package conversation implements the slot-filling dialogue engine that
// walks a user from first contact to a booked appointment.
package conversation

import (
	"time"
)

// Awaiting marks which input the conversation is waiting for. At most one
// marker is active between turns.
type Awaiting string

const (
	AwaitingNone             Awaiting = ""
	AwaitingName             Awaiting = "name"
	AwaitingService          Awaiting = "service"
	AwaitingDateTime         Awaiting = "datetime"
	AwaitingDateConfirmation Awaiting = "date_confirmation"
)

// State is the per-user conversation state between turns. It serializes to
// a flat JSON object in the conversations table.
type State struct {
	Name           string     `json:"name,omitempty"`
	Service        string     `json:"service,omitempty"`
	AppointmentUTC *time.Time `json:"appointment_utc,omitempty"`
	// SuggestedUTC is a rollover candidate pending yes/no confirmation.
	// Set if and only if Awaiting == AwaitingDateConfirmation.
	SuggestedUTC *time.Time `json:"suggested_utc,omitempty"`
	Awaiting     Awaiting   `json:"awaiting,omitempty"`
	LastActivity time.Time  `json:"last_activity"`
}

// Empty reports whether no booking progress has been made.
func (s *State) Empty() bool {
	return s.Name == "" && s.Service == "" && s.AppointmentUTC == nil &&
		s.SuggestedUTC == nil && s.Awaiting == AwaitingNone
}

// Ready reports whether all fields needed to attempt a booking are present.
func (s *State) Ready() bool {
	return s.Name != "" && s.Service != "" && s.AppointmentUTC != nil
}

// Expired reports whether the session idled past the timeout.
func (s *State) Expired(now time.Time, timeout time.Duration) bool {
	if s.LastActivity.IsZero() {
		return false
	}
	return now.Sub(s.LastActivity) > timeout
}

// Reset clears all booking progress. LastActivity is left alone; the engine
// stamps it when persisting.
func (s *State) Reset() {
	s.Name = ""
	s.Service = ""
	s.AppointmentUTC = nil
	s.SuggestedUTC = nil
	s.Awaiting = AwaitingNone
}

// normalize repairs states that violate the suggested/awaiting pairing,
// which can only come from hand-edited or legacy rows.
func (s *State) normalize() {
	if s.Awaiting == AwaitingDateConfirmation && s.SuggestedUTC == nil {
		s.Awaiting = AwaitingNone
	}
	if s.Awaiting != AwaitingDateConfirmation && s.SuggestedUTC != nil {
		s.SuggestedUTC = nil
	}
}

// Message is one transcript entry, oldest-first when listed.
type Message struct {
	Direction string    `json:"direction"` // "in" or "out"
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
