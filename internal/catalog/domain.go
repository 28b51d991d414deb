// Package catalog holds the static card list, the member roster and the
// per-member eligibility rules. Everything here is loaded once at start-up
// and never mutated afterwards.
package catalog

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// SingleCapacity is how many members may hold an ordinary card per date.
	SingleCapacity = 1
	// MultiCapacity is how many members may hold the communal card per date.
	MultiCapacity = 3
)

// ErrInvalidCatalog wraps every structural problem found while loading.
var ErrInvalidCatalog = errors.New("catalog: invalid configuration")

// Role is one card that can be drawn.
type Role struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	Title       string `yaml:"title" json:"title" validate:"required"`
	Subtitle    string `yaml:"subtitle,omitempty" json:"subtitle,omitempty"`
	Image       string `yaml:"image" json:"image" validate:"required"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Multi       bool   `yaml:"multi,omitempty" json:"-"`
}

// Capacity returns how many assignments the role accepts per date.
func (r Role) Capacity() int {
	if r.Multi {
		return MultiCapacity
	}
	return SingleCapacity
}

// NormalizeName canonicalises a member name so that differently encoded
// accents compare equal.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}
