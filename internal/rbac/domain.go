package rbac

import "time"

// Special marks a role that overrides normal permission evaluation.
type Special string

const (
	// SpecialNone derives the role's authority from its permission set alone.
	SpecialNone Special = ""
	// SpecialAllAccess grants every permission.
	SpecialAllAccess Special = "all-access"
	// SpecialNoAccess denies every permission, regardless of other grants.
	SpecialNoAccess Special = "no-access"
)

// Valid reports whether s is one of the known special values.
func (s Special) Valid() bool {
	switch s {
	case SpecialNone, SpecialAllAccess, SpecialNoAccess:
		return true
	}
	return false
}

// Role represents a named collection of permissions. The slug is the
// lookup key for authorization decisions.
type Role struct {
	ID          int64
	Slug        string
	Name        string
	Description string
	Special     Special
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission represents an atomic capability identified by slug.
type Permission struct {
	ID          int64
	Slug        string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleGrant is a role together with its loaded permission slugs.
type RoleGrant struct {
	Role
	Permissions []string
}

// HasPermission reports whether the role carries the permission slug.
// Slugs match exactly, case included.
func (g RoleGrant) HasPermission(slug string) bool {
	for _, p := range g.Permissions {
		if p == slug {
			return true
		}
	}
	return false
}

// Subject is an in-memory snapshot of an actor's authority: every role it
// holds (with each role's permissions) plus its direct permission grants.
// A snapshot is loaded in a single repeatable-read transaction so the
// resolver never sees a half-updated grant set.
type Subject struct {
	ID     int64
	Roles  []RoleGrant
	Direct []string
}

// GuestSubject wraps a single role into a synthetic subject, used as the
// stand-in actor for unauthenticated requests.
func GuestSubject(grant RoleGrant) Subject {
	return Subject{Roles: []RoleGrant{grant}}
}

// ChangeSet summarises the result of a sync operation on an edge set.
type ChangeSet struct {
	Attached []int64 `json:"attached"`
	Detached []int64 `json:"detached"`
}

// Empty reports whether the sync changed nothing.
func (c ChangeSet) Empty() bool {
	return len(c.Attached) == 0 && len(c.Detached) == 0
}
