package repository

import "github.com/google/uuid"

func newID() string {
	return uuid.NewString()
}

// validID guards uuid columns so malformed ids read as "not found" rather than driver errors.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
