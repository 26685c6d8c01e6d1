package service

import (
	"strings"

	"github.com/google/uuid"
)

// canonicalID is the single identity rule: ids that parse as UUIDs compare in canonical
// lower-case form, anything else compares as trimmed text.
func canonicalID(id string) string {
	id = strings.TrimSpace(id)
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return id
}

func sameID(a, b string) bool {
	return canonicalID(a) == canonicalID(b)
}
