package rbac_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessgate/accessgate/internal/rbac"
)

func grant(slug string, special rbac.Special, perms ...string) rbac.RoleGrant {
	return rbac.RoleGrant{
		Role:        rbac.Role{Slug: slug, Special: special},
		Permissions: perms,
	}
}

// permutations returns every ordering of the given role grants.
func permutations(grants []rbac.RoleGrant) [][]rbac.RoleGrant {
	if len(grants) <= 1 {
		return [][]rbac.RoleGrant{grants}
	}
	var out [][]rbac.RoleGrant
	for i := range grants {
		rest := make([]rbac.RoleGrant, 0, len(grants)-1)
		rest = append(rest, grants[:i]...)
		rest = append(rest, grants[i+1:]...)
		for _, tail := range permutations(rest) {
			perm := append([]rbac.RoleGrant{grants[i]}, tail...)
			out = append(out, perm)
		}
	}
	return out
}

func TestCanRoleGrant(t *testing.T) {
	editor := rbac.Subject{Roles: []rbac.RoleGrant{
		grant("editor", rbac.SpecialNone, "publish"),
	}}

	assert.True(t, editor.Can("publish"))
	assert.False(t, editor.Can("delete"))
}

func TestCanSlugMatchIsExact(t *testing.T) {
	subject := rbac.Subject{Roles: []rbac.RoleGrant{
		grant("editor", rbac.SpecialNone, "publish"),
	}}

	assert.False(t, subject.Can("Publish"))
	assert.False(t, subject.Can("publish "))
}

func TestCanDirectPermissionFallback(t *testing.T) {
	subject := rbac.Subject{
		Roles:  []rbac.RoleGrant{grant("viewer", rbac.SpecialNone, "read")},
		Direct: []string{"export"},
	}

	assert.True(t, subject.Can("export"))
	assert.True(t, subject.Can("read"))
	assert.False(t, subject.Can("delete"))
}

func TestCanNoAccessVetoesEveryOrdering(t *testing.T) {
	grants := []rbac.RoleGrant{
		grant("editor", rbac.SpecialNone, "publish"),
		grant("banned", rbac.SpecialNoAccess),
		grant("root", rbac.SpecialAllAccess),
	}

	for _, ordering := range permutations(grants) {
		subject := rbac.Subject{Roles: ordering, Direct: []string{"publish"}}
		assert.False(t, subject.Can("publish"), "ordering %v", slugsOf(ordering))
		assert.False(t, subject.CanAtLeast([]string{"publish", "delete"}), "ordering %v", slugsOf(ordering))
	}
}

func TestCanAllAccessGrantsEverything(t *testing.T) {
	grants := []rbac.RoleGrant{
		grant("viewer", rbac.SpecialNone, "read"),
		grant("root", rbac.SpecialAllAccess),
	}

	for _, ordering := range permutations(grants) {
		subject := rbac.Subject{Roles: ordering}
		assert.True(t, subject.Can("anything-at-all"), "ordering %v", slugsOf(ordering))
	}
}

func TestCanBannedOverridesEditor(t *testing.T) {
	subject := rbac.Subject{Roles: []rbac.RoleGrant{
		grant("editor", rbac.SpecialNone, "publish"),
		grant("banned", rbac.SpecialNoAccess),
	}}

	assert.False(t, subject.Can("publish"))
}

func TestCanAtLeastMatchesDisjunctionWithoutSpecials(t *testing.T) {
	subject := rbac.Subject{
		Roles:  []rbac.RoleGrant{grant("editor", rbac.SpecialNone, "publish")},
		Direct: []string{"export"},
	}

	cases := [][]string{
		{"publish", "delete"},
		{"delete", "export"},
		{"delete", "purge"},
		{"publish", "export"},
	}
	for _, slugs := range cases {
		want := false
		for _, slug := range slugs {
			if subject.Can(slug) {
				want = true
			}
		}
		assert.Equal(t, want, subject.CanAtLeast(slugs), "slugs %v", slugs)
	}
}

func TestCanAtLeastSpecialsShortCircuitLikeCan(t *testing.T) {
	banned := rbac.Subject{Roles: []rbac.RoleGrant{
		grant("editor", rbac.SpecialNone, "publish"),
		grant("banned", rbac.SpecialNoAccess),
	}}
	// A naive disjunction over Can would also be false here, but the veto
	// must hold even when a member slug is directly granted.
	banned.Direct = []string{"delete"}
	assert.False(t, banned.CanAtLeast([]string{"publish", "delete"}))

	root := rbac.Subject{Roles: []rbac.RoleGrant{grant("root", rbac.SpecialAllAccess)}}
	assert.True(t, root.CanAtLeast([]string{"no-such-permission"}))
}

func TestIsCaseInsensitive(t *testing.T) {
	subject := rbac.Subject{Roles: []rbac.RoleGrant{grant("admin", rbac.SpecialNone)}}

	assert.True(t, subject.Is("admin"))
	assert.True(t, subject.Is("Admin"))
	assert.True(t, subject.Is("ADMIN"))
	assert.False(t, subject.Is("editor"))
}

func TestGuestSubject(t *testing.T) {
	guest := rbac.GuestSubject(grant("guest", rbac.SpecialNone, "read-public"))

	assert.True(t, guest.Can("read-public"))
	assert.False(t, guest.Can("delete"))
	assert.True(t, guest.Is("guest"))
}

func TestPermissionSlugsDeduplicates(t *testing.T) {
	subject := rbac.Subject{
		Roles: []rbac.RoleGrant{
			grant("editor", rbac.SpecialNone, "publish", "read"),
			grant("reviewer", rbac.SpecialNone, "read", "approve"),
		},
		Direct: []string{"read", "export"},
	}

	require.Equal(t, []string{"approve", "export", "publish", "read"}, subject.PermissionSlugs())
}

func TestRoleSlugs(t *testing.T) {
	subject := rbac.Subject{Roles: []rbac.RoleGrant{
		grant("editor", rbac.SpecialNone),
		grant("reviewer", rbac.SpecialNone),
	}}

	assert.Equal(t, []string{"editor", "reviewer"}, subject.RoleSlugs())
}

func TestEmptySubjectCanNothing(t *testing.T) {
	var subject rbac.Subject

	assert.False(t, subject.Can("anything"))
	assert.False(t, subject.CanAtLeast([]string{"a", "b"}))
	assert.False(t, subject.Is("admin"))
	assert.Empty(t, subject.PermissionSlugs())
}

func slugsOf(grants []rbac.RoleGrant) []string {
	slugs := make([]string, len(grants))
	for i, g := range grants {
		slugs[i] = g.Slug
	}
	return slugs
}
