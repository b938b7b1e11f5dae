package view_test

import (
	"bytes"
	"testing"
	"text/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessgate/accessgate/internal/rbac"
	"github.com/accessgate/accessgate/internal/view"
)

func render(t *testing.T, subject rbac.Subject, body string) string {
	t.Helper()
	tmpl, err := template.New("page").Funcs(template.FuncMap(view.Helpers(subject))).Parse(body)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, tmpl.Execute(&buf, nil))
	return buf.String()
}

func TestHelpers(t *testing.T) {
	subject := rbac.Subject{
		ID: 1,
		Roles: []rbac.RoleGrant{{
			Role:        rbac.Role{Slug: "editor"},
			Permissions: []string{"posts.edit"},
		}},
	}

	out := render(t, subject, `{{ if can "posts.edit" }}edit{{ end }}{{ if can "posts.delete" }}delete{{ end }}`)
	assert.Equal(t, "edit", out)

	out = render(t, subject, `{{ if canatleast "posts.delete" "posts.edit" }}any{{ end }}`)
	assert.Equal(t, "any", out)

	out = render(t, subject, `{{ if role "Editor" }}yes{{ end }}{{ if role "admin" }}no{{ end }}`)
	assert.Equal(t, "yes", out)
}

func TestHelpersNoAccessHidesEverything(t *testing.T) {
	subject := rbac.Subject{
		ID: 1,
		Roles: []rbac.RoleGrant{
			{Role: rbac.Role{Slug: "editor"}, Permissions: []string{"posts.edit"}},
			{Role: rbac.Role{Slug: "banned", Special: rbac.SpecialNoAccess}},
		},
	}

	out := render(t, subject, `{{ if can "posts.edit" }}edit{{ end }}`)
	assert.Empty(t, out)
}
