// Package schedule projects the drawn cards of a date into the meeting
// programme shown to members.
package schedule

import (
	"github.com/novacriatura/rota/internal/calendar"
)

// Slot names of the programme.
const (
	SlotOracao      = "oracao"
	SlotLouvor      = "louvor"
	SlotDinamica    = "dinamica"
	SlotVisao       = "visao"
	SlotFacilitacao = "facilitacao"
	SlotOferta      = "oferta"
	SlotComunhao    = "comunhao"
)

// DefaultTime is the meeting time used when none is configured.
const DefaultTime = "17:00"

// roleSlots maps card ids to programme slots. Cards without a slot are not shown.
var roleSlots = map[string]string{
	"oracao":      SlotOracao,
	"louvor":      SlotLouvor,
	"quebra-gelo": SlotDinamica,
	"visao":       SlotVisao,
	"oferta":      SlotOferta,
	"lanche":      SlotComunhao,
}

// SlotFor returns the programme slot of a card id.
func SlotFor(roleID string) (string, bool) {
	slot, ok := roleSlots[roleID]
	return slot, ok
}

// Roles lists who covers each slot. Facilitation is fixed by configuration.
type Roles struct {
	Oracao      string   `json:"oracao,omitempty"`
	Louvor      string   `json:"louvor,omitempty"`
	Dinamica    string   `json:"dinamica,omitempty"`
	Visao       string   `json:"visao,omitempty"`
	Facilitacao string   `json:"facilitacao"`
	Oferta      string   `json:"oferta,omitempty"`
	Comunhao    []string `json:"comunhao"`
}

// View is the programme of one meeting date.
type View struct {
	Date    calendar.Date `json:"date"`
	Weekday string        `json:"weekday"`
	Time    string        `json:"time"`
	Roles   Roles         `json:"roles"`
}
