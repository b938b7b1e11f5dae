package rbac

import (
	"sort"
	"strings"
)

// Resolution is pure computation over an already-loaded Subject snapshot.
// Role evaluation is a fixed reduction rather than an ordered scan, so the
// outcome never depends on the order roles were loaded in:
//
//  1. any no-access role vetoes, unconditionally
//  2. otherwise any all-access role grants
//  3. otherwise the union of ordinary role permissions decides
//  4. otherwise direct permission grants decide
//
// A subject holding both a no-access and an all-access role is therefore
// always denied. That combination is an administrative misconfiguration;
// resolving it in favour of the veto is the documented policy here.

// Can reports whether the subject holds the permission slug. Slug matching
// is exact. Absence of the permission anywhere is false, never an error.
func (s Subject) Can(slug string) bool {
	var allAccess, granted bool
	for _, role := range s.Roles {
		switch role.Special {
		case SpecialNoAccess:
			return false
		case SpecialAllAccess:
			allAccess = true
		default:
			if role.HasPermission(slug) {
				granted = true
			}
		}
	}
	if allAccess || granted {
		return true
	}
	for _, p := range s.Direct {
		if p == slug {
			return true
		}
	}
	return false
}

// CanAtLeast reports whether the subject holds at least one of the given
// permission slugs. Special roles short-circuit identically to Can.
func (s Subject) CanAtLeast(slugs []string) bool {
	var allAccess, granted bool
	for _, role := range s.Roles {
		switch role.Special {
		case SpecialNoAccess:
			return false
		case SpecialAllAccess:
			allAccess = true
		default:
			if !granted {
				for _, slug := range slugs {
					if role.HasPermission(slug) {
						granted = true
						break
					}
				}
			}
		}
	}
	if allAccess || granted {
		return true
	}
	for _, p := range s.Direct {
		for _, slug := range slugs {
			if p == slug {
				return true
			}
		}
	}
	return false
}

// Is reports whether the subject holds a role with the given slug.
// Comparison is case-insensitive.
func (s Subject) Is(slug string) bool {
	slug = strings.ToLower(slug)
	for _, role := range s.Roles {
		if strings.ToLower(role.Slug) == slug {
			return true
		}
	}
	return false
}

// RoleSlugs returns the slugs of every role the subject holds.
func (s Subject) RoleSlugs() []string {
	slugs := make([]string, 0, len(s.Roles))
	for _, role := range s.Roles {
		slugs = append(slugs, role.Slug)
	}
	return slugs
}

// PermissionSlugs returns the flattened, deduplicated permission slugs
// reachable from the subject: every role's permissions plus direct grants.
// Special flags are not applied here; this is the raw reachable set.
func (s Subject) PermissionSlugs() []string {
	seen := make(map[string]struct{})
	for _, role := range s.Roles {
		for _, p := range role.Permissions {
			seen[p] = struct{}{}
		}
	}
	for _, p := range s.Direct {
		seen[p] = struct{}{}
	}
	slugs := make([]string, 0, len(seen))
	for p := range seen {
		slugs = append(slugs, p)
	}
	sort.Strings(slugs)
	return slugs
}
