// Package view exposes authorization predicates for template rendering.
package view

import (
	"html/template"

	"github.com/accessgate/accessgate/internal/rbac"
)

// Helpers returns template funcs for conditional rendering around a loaded
// subject snapshot. Pure pass-throughs to the resolver:
//
//	{{ if can "posts.publish" }} ... {{ end }}
//	{{ if canatleast "posts.edit" "posts.publish" }} ... {{ end }}
//	{{ if role "admin" }} ... {{ end }}
func Helpers(subject rbac.Subject) template.FuncMap {
	return template.FuncMap{
		"can": func(slug string) bool {
			return subject.Can(slug)
		},
		"canatleast": func(slugs ...string) bool {
			return subject.CanAtLeast(slugs)
		},
		"role": func(slug string) bool {
			return subject.Is(slug)
		},
	}
}
