package auth

// Permission catalog names.
const (
	PermManageUsers   = "manage_users"
	PermViewUsers     = "view_users"
	PermAssignRoles   = "assign_roles"
	PermManageRoles   = "manage_roles"
	PermCreateSurvey  = "create_survey"
	PermEditSurvey    = "edit_survey"
	PermDeleteSurvey  = "delete_survey"
	PermViewSurvey    = "view_survey"
	PermViewResults   = "view_results"
	PermExportResults = "export_results"
	PermShareSurvey   = "share_survey"
)

// System role names created for every organization.
const (
	RoleAdmin         = "Admin"
	RoleSurveyCreator = "Survey Creator"
	RoleViewer        = "Viewer"
)

// Catalog is the fixed, global permission catalog seeded by migrations.
var Catalog = []Permission{
	{Name: PermManageUsers, Description: "Create, update and deactivate users", Category: "users"},
	{Name: PermViewUsers, Description: "View users of the organization", Category: "users"},
	{Name: PermAssignRoles, Description: "Assign roles to users", Category: "users"},
	{Name: PermManageRoles, Description: "Create and edit roles", Category: "roles"},
	{Name: PermCreateSurvey, Description: "Create surveys", Category: "surveys"},
	{Name: PermEditSurvey, Description: "Edit surveys", Category: "surveys"},
	{Name: PermDeleteSurvey, Description: "Delete surveys", Category: "surveys"},
	{Name: PermViewSurvey, Description: "View surveys", Category: "surveys"},
	{Name: PermViewResults, Description: "View survey results", Category: "results"},
	{Name: PermExportResults, Description: "Export survey results", Category: "results"},
	{Name: PermShareSurvey, Description: "Share surveys", Category: "surveys"},
}

// SystemRole describes one of the roles bootstrap creates.
type SystemRole struct {
	Name        string
	Description string
	Permissions []string
}

// BaselinePolicy lists the system roles and their grants, in creation order.
// Admin does not receive manage_roles.
var BaselinePolicy = []SystemRole{
	{
		Name:        RoleAdmin,
		Description: "Organization administrator",
		Permissions: []string{
			PermManageUsers, PermViewUsers, PermAssignRoles,
			PermCreateSurvey, PermEditSurvey, PermDeleteSurvey, PermViewSurvey,
			PermViewResults, PermExportResults, PermShareSurvey,
		},
	},
	{
		Name:        RoleSurveyCreator,
		Description: "Can create and manage surveys",
		Permissions: []string{
			PermCreateSurvey, PermEditSurvey, PermViewSurvey,
			PermViewResults, PermExportResults, PermShareSurvey,
		},
	},
	{
		Name:        RoleViewer,
		Description: "Can only view results",
		Permissions: []string{PermViewSurvey, PermViewResults},
	},
}
