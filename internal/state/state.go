package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStateFile indicates the persisted provisioning state is missing,
	// unreadable or does not hold the roles an operation needs.
	ErrStateFile = errors.New("provisioning state unavailable")

	// ErrNoState is wrapped alongside ErrStateFile when nothing has been
	// stored yet, as opposed to state that exists but cannot be read.
	ErrNoState = errors.New("no provisioning state stored")

	// ErrRoleExists is returned when a write would replace an account record
	// that has already been persisted.
	ErrRoleExists = errors.New("account record already exists")
)

// Role names one of the administrative accounts.
type Role string

const (
	RoleIssuer     Role = "issuer"
	RoleFoundation Role = "foundation"
)

// Roles is the fixed creation order.
var Roles = []Role{RoleIssuer, RoleFoundation}

// AccountRecord holds the credentials of a provisioned account.
type AccountRecord struct {
	Role    Role   `json:"-"`
	Address string `json:"address"`
	Secret  string `json:"secret"`
}

// Valid reports whether both address and secret are set.
func (r AccountRecord) Valid() bool {
	return r.Address != "" && r.Secret != ""
}

// State maps each provisioned role to its account record.
type State map[Role]AccountRecord

// New returns an empty state.
func New() State {
	return State{}
}

// Get returns the record for role.
func (s State) Get(role Role) (AccountRecord, bool) {
	rec, ok := s[role]
	return rec, ok
}

// Has reports whether role holds a usable record.
func (s State) Has(role Role) bool {
	rec, ok := s[role]
	return ok && rec.Valid()
}

// Put stores rec under its role. Existing records are never replaced.
func (s State) Put(rec AccountRecord) error {
	if !rec.Valid() {
		return fmt.Errorf("account record for %s is incomplete", rec.Role)
	}
	if s.Has(rec.Role) {
		return fmt.Errorf("%s: %w", rec.Role, ErrRoleExists)
	}
	s[rec.Role] = rec
	return nil
}

// Complete reports whether every role in Roles is present.
func (s State) Complete() bool {
	for _, role := range Roles {
		if !s.Has(role) {
			return false
		}
	}
	return true
}

// Clone returns a copy that can be mutated independently.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// RequireRoles fails with ErrStateFile when any of roles is missing.
func RequireRoles(s State, roles ...Role) error {
	var missing []string
	for _, role := range roles {
		if !s.Has(role) {
			missing = append(missing, string(role))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s account", ErrStateFile, strings.Join(missing, ", "))
	}
	return nil
}

// Store persists provisioning state. Save writes the whole state.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// Replacer is implemented by stores whose Save never replaces existing
// records. Replace swaps the whole stored state in one step; on failure the
// previous records are kept.
type Replacer interface {
	Replace(ctx context.Context, s State) error
}
