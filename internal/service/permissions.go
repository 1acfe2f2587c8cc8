package service

import "github.com/google/uuid"

// RoleKind orders roles by increasing authority.
type RoleKind int

const (
	RoleMember RoleKind = iota
	RoleOrgAdmin
	RoleOrgSysAdmin
	RoleSuperAdmin
	RoleOmnipotent
)

// Role is a resolved capability. Org-scoped kinds carry the scope they
// administer; global kinds leave both scope fields zero.
type Role struct {
	Kind     RoleKind
	OrgID    uuid.UUID
	SystemID uuid.UUID
}

func Member() Role                        { return Role{Kind: RoleMember} }
func OrgAdmin(orgID uuid.UUID) Role       { return Role{Kind: RoleOrgAdmin, OrgID: orgID} }
func OrgSysAdmin(systemID uuid.UUID) Role { return Role{Kind: RoleOrgSysAdmin, SystemID: systemID} }
func SuperAdmin() Role                    { return Role{Kind: RoleSuperAdmin} }
func Omnipotent() Role                    { return Role{Kind: RoleOmnipotent} }

// Action names an operation against a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
	ActionAdmin  Action = "admin"
)

// ResourceKind names a protected resource class.
type ResourceKind string

const (
	ResourceOwnProfile   ResourceKind = "own_profile"
	ResourceUser         ResourceKind = "user"
	ResourceOrganization ResourceKind = "organization"
	ResourceOrgSystem    ResourceKind = "org_system"
	ResourceApplication  ResourceKind = "application"
	ResourceLicense      ResourceKind = "license"
	ResourceSubscriber   ResourceKind = "event_subscriber"
)

// Resource identifies a concrete target. OrgID and SystemID scope the
// target for org-bound resource kinds; zero values mean unscoped.
type Resource struct {
	Kind     ResourceKind
	OrgID    uuid.UUID
	SystemID uuid.UUID
}

// Permits is the single authorization decision point. Precedence runs
// from the most privileged kind down; the first matching row decides.
func Permits(role Role, action Action, resource Resource) bool {
	switch role.Kind {
	case RoleOmnipotent:
		return true
	case RoleSuperAdmin:
		// Super admins manage everything except subscriber credentials.
		return resource.Kind != ResourceSubscriber || action == ActionRead
	case RoleOrgSysAdmin:
		return permitsOrgSysAdmin(role, action, resource)
	case RoleOrgAdmin:
		return permitsOrgAdmin(role, action, resource)
	case RoleMember:
		return resource.Kind == ResourceOwnProfile
	}
	return false
}

func permitsOrgSysAdmin(role Role, action Action, resource Resource) bool {
	if resource.Kind == ResourceOwnProfile {
		return true
	}
	if resource.SystemID != role.SystemID || role.SystemID == uuid.Nil {
		return false
	}
	switch resource.Kind {
	case ResourceOrganization, ResourceOrgSystem, ResourceUser, ResourceLicense:
		return action != ActionDelete || resource.Kind != ResourceOrgSystem
	}
	return false
}

func permitsOrgAdmin(role Role, action Action, resource Resource) bool {
	if resource.Kind == ResourceOwnProfile {
		return true
	}
	if resource.OrgID != role.OrgID || role.OrgID == uuid.Nil {
		return false
	}
	switch resource.Kind {
	case ResourceOrganization:
		return action == ActionRead || action == ActionWrite
	case ResourceUser, ResourceLicense:
		return action != ActionAdmin
	}
	return false
}
