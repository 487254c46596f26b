// Package role implements the role hierarchy used for authorization
// decisions. Roles form a strict total order; comparisons are pure
// functions with no I/O, so they are safe to evaluate on every request.
package role

// Role names a position in the retail role hierarchy.
type Role string

const (
	// Staff is the lowest privileged role.
	Staff Role = "staff"
	// Cashier can operate the point of sale.
	Cashier Role = "cashier"
	// Manager can administer a single store.
	Manager Role = "manager"
	// Admin is the highest privileged role.
	Admin Role = "admin"
)

var levels = map[Role]int{
	Staff:   1,
	Cashier: 2,
	Manager: 3,
	Admin:   4,
}

// Level returns the numeric rank of r. Unrecognized roles rank 0 and
// are therefore authorized for nothing.
func Level(r Role) int {
	return levels[r]
}

// Valid reports whether r is one of the defined roles.
func Valid(r Role) bool {
	_, ok := levels[r]
	return ok
}

// Authorize reports whether actual meets or exceeds required.
func Authorize(actual, required Role) bool {
	actualLevel := Level(actual)
	if actualLevel == 0 {
		return false
	}
	return actualLevel >= Level(required)
}
