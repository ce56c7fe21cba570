package xid

import (
	"github.com/google/uuid"
)

// New returns a random identifier such as "req-5f1c...". An empty prefix
// yields the bare UUID.
func New(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// Valid reports whether id is acceptable as an inbound correlation id.
func Valid(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}
