package auctions

import (
	"time"

	"github.com/ariefcatur/harvest-market/internal/apperr"
)

var ErrAlreadyClosed = apperr.InvalidState("Auction already closed")

// Forward-only. SCHEDULED -> CLOSED is the administrative cancel of an
// auction that never opened.
var validNext = map[Status]map[Status]bool{
	StatusScheduled: {StatusOpen: true, StatusClosed: true},
	StatusOpen:      {StatusClosed: true},
	StatusClosed:    {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Advance applies the time-driven transitions due at now and reports whether
// the status changed. An auction whose whole window has passed goes
// SCHEDULED -> OPEN -> CLOSED in one call.
func (a *Auction) Advance(now time.Time) bool {
	changed := false
	if a.Status == StatusScheduled && !now.Before(a.StartAt) {
		a.Status = StatusOpen
		changed = true
	}
	if a.Status == StatusOpen && !now.Before(a.EndAt) {
		a.Status = StatusClosed
		changed = true
	}
	if changed {
		a.UpdatedAt = now.UTC()
	}
	return changed
}

// Close ends the auction administratively.
func (a *Auction) Close(now time.Time) error {
	if !CanTransition(a.Status, StatusClosed) {
		return ErrAlreadyClosed
	}
	a.Status = StatusClosed
	a.UpdatedAt = now.UTC()
	return nil
}

// Due reports whether Advance would change anything at now.
func (a *Auction) Due(now time.Time) bool {
	switch a.Status {
	case StatusScheduled:
		return !now.Before(a.StartAt)
	case StatusOpen:
		return !now.Before(a.EndAt)
	}
	return false
}
