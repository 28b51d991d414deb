// Package audit checks the recorded history against the catalog rules and
// reports every inconsistency it finds.
package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/novacriatura/rota/internal/assignments"
	"github.com/novacriatura/rota/internal/calendar"
	"github.com/novacriatura/rota/internal/catalog"
)

// Finding kinds.
const (
	KindUnknownCard     = "unknown_card"
	KindUnknownMember   = "unknown_member"
	KindDuplicateMember = "duplicate_member"
	KindOverCapacity    = "over_capacity"
	KindNotEligible     = "not_eligible"
	KindRepeatedCard    = "repeated_card"
)

// Severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Finding is one inconsistency in the history.
type Finding struct {
	Kind     string        `json:"kind"`
	Severity string        `json:"severity"`
	Date     calendar.Date `json:"date"`
	Member   string        `json:"member,omitempty"`
	RoleID   string        `json:"cardId,omitempty"`
	Detail   string        `json:"detail"`
}

// Totals summarises the checked data.
type Totals struct {
	Cards       int `json:"cards"`
	Members     int `json:"members"`
	Assignments int `json:"assignments"`
}

// Report is the result of one audit run.
type Report struct {
	GeneratedAt time.Time      `json:"generatedAt"`
	Totals      Totals         `json:"totals"`
	Counts      map[string]int `json:"counts"`
	Findings    []Finding      `json:"findings"`
}

// OK reports whether the run found no errors. Warnings are tolerated.
func (r Report) OK() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return false
		}
	}
	return true
}

// Lister returns the whole history.
type Lister interface {
	All(ctx context.Context) ([]assignments.Assignment, error)
}

// Service runs audits over the live history.
type Service struct {
	source  Lister
	catalog *catalog.Catalog
	now     func() time.Time
}

// NewService constructs the audit service.
func NewService(source Lister, cat *catalog.Catalog) *Service {
	return &Service{source: source, catalog: cat, now: time.Now}
}

// Run loads the history and checks it.
func (s *Service) Run(ctx context.Context) (Report, error) {
	if s.source == nil {
		return Report{}, fmt.Errorf("audit: source not configured")
	}
	rows, err := s.source.All(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("audit: load history: %w", err)
	}
	report := Check(s.catalog, rows)
	report.GeneratedAt = s.now().UTC()
	return report, nil
}

type dateRole struct {
	date calendar.Date
	role string
}

type dateMember struct {
	date   calendar.Date
	member string
}

// Check inspects rows against cat. Findings are sorted by date, then kind.
func Check(cat *catalog.Catalog, rows []assignments.Assignment) Report {
	report := Report{
		Totals: Totals{
			Cards:       len(cat.Roles()),
			Members:     len(cat.Members()),
			Assignments: len(rows),
		},
		Counts:   map[string]int{},
		Findings: []Finding{},
	}
	add := func(f Finding) {
		report.Findings = append(report.Findings, f)
		report.Counts[f.Kind]++
	}

	roster := len(cat.Members()) > 0
	perRole := map[dateRole][]string{}
	perMember := map[dateMember][]assignments.Assignment{}

	for _, a := range rows {
		role, known := cat.Role(a.RoleID)
		if !known {
			add(Finding{Kind: KindUnknownCard, Severity: SeverityError, Date: a.Date, Member: a.Member, RoleID: a.RoleID,
				Detail: fmt.Sprintf("card %q is not in the catalog", a.RoleID)})
		}
		if roster && !cat.IsMember(a.Member) {
			add(Finding{Kind: KindUnknownMember, Severity: SeverityError, Date: a.Date, Member: a.Member, RoleID: a.RoleID,
				Detail: fmt.Sprintf("%s is not on the roster", a.Member)})
		}
		if known && cat.Restricted(a.Member) && !contains(cat.AllowedRoleIDs(a.Member), role.ID) {
			add(Finding{Kind: KindNotEligible, Severity: SeverityError, Date: a.Date, Member: a.Member, RoleID: a.RoleID,
				Detail: fmt.Sprintf("%s may not hold card %q", a.Member, a.RoleID)})
		}
		key := dateRole{a.Date, a.RoleID}
		perRole[key] = append(perRole[key], a.Member)
		mk := dateMember{a.Date, a.Member}
		perMember[mk] = append(perMember[mk], a)
	}

	for key, members := range perRole {
		capacity := cat.Capacity(key.role)
		if capacity == 0 || len(members) <= capacity {
			continue
		}
		add(Finding{Kind: KindOverCapacity, Severity: SeverityError, Date: key.date, RoleID: key.role,
			Detail: fmt.Sprintf("card %q held by %d members (capacity %d): %v", key.role, len(members), capacity, members)})
	}

	for key, held := range perMember {
		if len(held) > 1 {
			add(Finding{Kind: KindDuplicateMember, Severity: SeverityError, Date: key.date, Member: key.member,
				Detail: fmt.Sprintf("%s holds %d cards on the same date", key.member, len(held))})
		}
		prev, ok := perMember[dateMember{key.date.PreviousSameWeekday(), key.member}]
		if !ok {
			continue
		}
		for _, cur := range held {
			for _, p := range prev {
				if p.RoleID == cur.RoleID {
					add(Finding{Kind: KindRepeatedCard, Severity: SeverityWarning, Date: key.date, Member: key.member, RoleID: cur.RoleID,
						Detail: fmt.Sprintf("%s repeated card %q from %s", key.member, cur.RoleID, p.Date)})
				}
			}
		}
	}

	sort.SliceStable(report.Findings, func(i, j int) bool {
		a, b := report.Findings[i], report.Findings[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Member != b.Member {
			return a.Member < b.Member
		}
		return a.RoleID < b.RoleID
	})
	return report
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
