package rbac

// Role is the staff role carried by the session claim. Values outside the
// constants below are legal and grant nothing.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleEditor     Role = "editor"
	RoleOrderer    Role = "orderer"
	RoleAccountant Role = "accountant"
)

// Section is a page grouping directly under the admin prefix.
type Section string

const (
	SectionDashboard Section = "dashboard"
	SectionProducts  Section = "products"
	SectionOrders    Section = "orders"
	SectionRevenue   Section = "revenue"
)

// AllSections lists sections in navigation order.
var AllSections = []Section{SectionDashboard, SectionProducts, SectionOrders, SectionRevenue}

type grant struct {
	all      bool
	sections []Section
}

// permissions is the static role to section allow-list.
var permissions = map[Role]grant{
	RoleAdmin:      {all: true},
	RoleManager:    {all: true},
	RoleEditor:     {sections: []Section{SectionProducts, SectionDashboard}},
	RoleOrderer:    {sections: []Section{SectionOrders, SectionDashboard}},
	RoleAccountant: {sections: []Section{SectionRevenue, SectionDashboard}},
}

// Known reports whether the role appears in the permission table.
func Known(role Role) bool {
	_, ok := permissions[role]
	return ok
}

// HasFullAccess reports whether the role may open every admin path.
func HasFullAccess(role Role) bool {
	return permissions[role].all
}

// Allowed reports whether the role may open the section.
func Allowed(role Role, section Section) bool {
	g := permissions[role]
	if g.all {
		return true
	}
	for _, s := range g.sections {
		if s == section {
			return true
		}
	}
	return false
}

// Sections returns the sections a role may open, in navigation order.
func Sections(role Role) []Section {
	out := make([]Section, 0, len(AllSections))
	for _, s := range AllSections {
		if Allowed(role, s) {
			out = append(out, s)
		}
	}
	return out
}

// IsValidRole reports whether a role may be assigned to a new account.
func IsValidRole(role string) bool {
	return Known(Role(role))
}
