package shoppolicy

// Capability is a named permission checked against a role.
type Capability string

const (
	ManageShop      Capability = "manage_shop"
	ManageStaff     Capability = "manage_staff"
	ManageInventory Capability = "manage_inventory"
	ViewSales       Capability = "view_sales"
	ManageSales     Capability = "manage_sales"
	ViewReports     Capability = "view_reports"
	DeleteShop      Capability = "delete_shop"
	InviteStaff     Capability = "invite_staff"
	RemoveStaff     Capability = "remove_staff"
	EditShopDetails Capability = "edit_shop_details"
	ViewCustomers   Capability = "view_customers"
	EditCustomer    Capability = "edit_customer"
)

// Capabilities lists every capability in a stable order.
var Capabilities = []Capability{
	ManageShop, ManageStaff, ManageInventory, ViewSales, ManageSales, ViewReports,
	DeleteShop, InviteStaff, RemoveStaff, EditShopDetails, ViewCustomers, EditCustomer,
}

func set(cs ...Capability) map[Capability]bool {
	m := make(map[Capability]bool, len(cs))
	for _, c := range cs {
		m[c] = true
	}
	return m
}

func union(base map[Capability]bool, cs ...Capability) map[Capability]bool {
	m := make(map[Capability]bool, len(base)+len(cs))
	for c := range base {
		m[c] = true
	}
	for _, c := range cs {
		m[c] = true
	}
	return m
}

var (
	viewerCaps  = set(ViewSales, ViewCustomers)
	staffCaps   = union(viewerCaps, ManageInventory, EditCustomer)
	salesCaps   = union(viewerCaps, ManageSales, EditCustomer)
	managerCaps = union(union(staffCaps, ManageSales), ViewReports, ManageStaff, InviteStaff)
	adminCaps   = union(managerCaps, RemoveStaff, EditShopDetails, ManageShop)
	ownerCaps   = union(adminCaps, DeleteShop)
)

// RolePermissions is the fixed role → capability matrix.
// owner ⊇ admin ⊇ manager ⊇ {staff, sales} ⊇ viewer; only owner holds DeleteShop.
var RolePermissions = map[Role]map[Capability]bool{
	RoleOwner:   ownerCaps,
	RoleAdmin:   adminCaps,
	RoleManager: managerCaps,
	RoleStaff:   staffCaps,
	RoleSales:   salesCaps,
	RoleViewer:  viewerCaps,
}

// Grants reports whether role r grants capability c. Unknown roles grant nothing.
func Grants(r Role, c Capability) bool {
	return RolePermissions[r][c]
}
