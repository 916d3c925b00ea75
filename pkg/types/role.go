package types

// Role is the marketplace permission level of a user. It is assigned by
// administrators or by the seller-approval flow; identity reconciliation
// must never write it.
type Role string

const (
	RoleReader Role = "reader"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleReader || r == RoleSeller || r == RoleAdmin
}

func (r Role) CanSell() bool {
	return r == RoleSeller || r == RoleAdmin
}
