// Package assignments draws meeting cards for members and keeps the
// append-only history of who holds which card on which date.
package assignments

import (
	"time"

	"github.com/google/uuid"

	"github.com/novacriatura/rota/internal/calendar"
	"github.com/novacriatura/rota/internal/catalog"
)

// Assignment records that Member holds RoleID on Date. Rows are never
// updated; they only disappear through a full reset.
type Assignment struct {
	ID        uuid.UUID     `json:"id"`
	Seq       int64         `json:"-"`
	Date      calendar.Date `json:"date"`
	Member    string        `json:"member"`
	RoleID    string        `json:"cardId"`
	CreatedAt time.Time     `json:"createdAt"`
}

// InsertParams carries a new row plus the capacity the store must respect
// for RoleID on Date while inserting.
type InsertParams struct {
	ID        uuid.UUID
	Date      calendar.Date
	Member    string
	RoleID    string
	Capacity  int
	CreatedAt time.Time
}

// AllocateRequest is the input of a draw.
type AllocateRequest struct {
	Member string `json:"member" validate:"required"`
	Date   string `json:"date" validate:"required"`
}

// Result is a successful draw. IsRepeated marks a compulsory repeat of the
// card the member held on the previous same-weekday meeting.
type Result struct {
	Assignment Assignment   `json:"assignment"`
	Role       catalog.Role `json:"card"`
	IsRepeated bool         `json:"isRepeated"`
}

// Outcome labels used for metrics and logs.
const (
	OutcomeAssigned        = "assigned"
	OutcomeRepeated        = "repeated"
	OutcomeInvalidInput    = "invalid_input"
	OutcomeAlreadyAssigned = "already_assigned"
	OutcomeNoEligibleRole  = "no_eligible_role"
	OutcomeNoCapacity      = "no_capacity"
	OutcomePersistence     = "persistence_failure"
)
