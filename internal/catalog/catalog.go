package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultDocument []byte

type document struct {
	Roles        []Role              `yaml:"roles" validate:"required,min=1,dive"`
	Members      []string            `yaml:"members" validate:"dive,required"`
	Restrictions map[string][]string `yaml:"restrictions" validate:"dive,keys,required,endkeys,required,min=1,dive,required"`
}

// Catalog is the immutable card list plus roster and eligibility rules.
type Catalog struct {
	roles     []Role
	byID      map[string]Role
	multi     *Role
	members   []string
	memberSet map[string]struct{}
	rules     map[string][]string
}

// Default loads the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Load(defaultDocument)
}

// LoadFile reads a YAML catalog from disk. An empty path means the embedded default.
func LoadFile(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Load(data)
}

// Load parses and validates a YAML catalog document.
func Load(data []byte) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidCatalog, err)
	}
	if err := validator.New().Struct(doc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCatalog, describeValidation(err))
	}
	return New(doc.Roles, doc.Members, doc.Restrictions)
}

// New assembles a Catalog from already decoded parts, enforcing the
// cross-field invariants: unique ids, at most one multi card, unique
// member names and allow-lists that only reference known cards.
func New(roles []Role, members []string, restrictions map[string][]string) (*Catalog, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("%w: at least one role is required", ErrInvalidCatalog)
	}
	c := &Catalog{
		roles:     make([]Role, 0, len(roles)),
		byID:      make(map[string]Role, len(roles)),
		memberSet: make(map[string]struct{}, len(members)),
		rules:     make(map[string][]string, len(restrictions)),
	}
	for i, role := range roles {
		role.ID = strings.TrimSpace(role.ID)
		if role.ID == "" || strings.TrimSpace(role.Title) == "" || strings.TrimSpace(role.Image) == "" {
			return nil, fmt.Errorf("%w: role #%d needs id, title and image", ErrInvalidCatalog, i)
		}
		if _, dup := c.byID[role.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate role id %q", ErrInvalidCatalog, role.ID)
		}
		if role.Multi {
			if c.multi != nil {
				return nil, fmt.Errorf("%w: roles %q and %q are both multi", ErrInvalidCatalog, c.multi.ID, role.ID)
			}
			multi := role
			c.multi = &multi
		}
		c.roles = append(c.roles, role)
		c.byID[role.ID] = role
	}
	for _, member := range members {
		name := NormalizeName(member)
		if name == "" {
			return nil, fmt.Errorf("%w: empty member name", ErrInvalidCatalog)
		}
		if _, dup := c.memberSet[name]; dup {
			return nil, fmt.Errorf("%w: duplicate member %q", ErrInvalidCatalog, name)
		}
		c.memberSet[name] = struct{}{}
		c.members = append(c.members, name)
	}
	for member, allowed := range restrictions {
		name := NormalizeName(member)
		if name == "" {
			return nil, fmt.Errorf("%w: restriction without member name", ErrInvalidCatalog)
		}
		if len(allowed) == 0 {
			return nil, fmt.Errorf("%w: restriction for %q is empty", ErrInvalidCatalog, name)
		}
		seen := make(map[string]struct{}, len(allowed))
		ids := make([]string, 0, len(allowed))
		for _, id := range allowed {
			id = strings.TrimSpace(id)
			if _, ok := c.byID[id]; !ok {
				return nil, fmt.Errorf("%w: restriction for %q references unknown role %q", ErrInvalidCatalog, name, id)
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		c.rules[name] = ids
	}
	return c, nil
}

// Roles returns the cards in configuration order.
func (c *Catalog) Roles() []Role {
	return append([]Role(nil), c.roles...)
}

// RolesByID returns a lookup table keyed by role id.
func (c *Catalog) RolesByID() map[string]Role {
	out := make(map[string]Role, len(c.byID))
	for id, role := range c.byID {
		out[id] = role
	}
	return out
}

// Role looks up a single card.
func (c *Catalog) Role(id string) (Role, bool) {
	role, ok := c.byID[id]
	return role, ok
}

// Capacity returns the per-date capacity of a role, zero when unknown.
func (c *Catalog) Capacity(id string) int {
	role, ok := c.byID[id]
	if !ok {
		return 0
	}
	return role.Capacity()
}

// MultiRole returns the communal card, if the catalog has one.
func (c *Catalog) MultiRole() (Role, bool) {
	if c.multi == nil {
		return Role{}, false
	}
	return *c.multi, true
}

// AllowedRoleIDs returns the allow-list for member. An empty result means
// the member is unrestricted.
func (c *Catalog) AllowedRoleIDs(member string) []string {
	return append([]string(nil), c.rules[NormalizeName(member)]...)
}

// Restricted reports whether member has an allow-list.
func (c *Catalog) Restricted(member string) bool {
	_, ok := c.rules[NormalizeName(member)]
	return ok
}

// Members returns the roster in configuration order.
func (c *Catalog) Members() []string {
	return append([]string(nil), c.members...)
}

// IsMember reports whether name is on the roster.
func (c *Catalog) IsMember(name string) bool {
	_, ok := c.memberSet[NormalizeName(name)]
	return ok
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
