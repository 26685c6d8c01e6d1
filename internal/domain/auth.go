package domain

// Principal is the authenticated caller handed to every engine operation.
type Principal struct {
	ID   string
	Role Role
}
