package shared

// Core platform permissions guarding the administrative surface.
const (
	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView = "permissions.view"
	PermPermissionsEdit = "permissions.edit"

	PermGrantsView = "grants.view"
	PermGrantsEdit = "grants.edit"

	PermJobsRun = "jobs.run"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermPermissionsEdit,
		PermGrantsView,
		PermGrantsEdit,
		PermJobsRun,
	}
}
