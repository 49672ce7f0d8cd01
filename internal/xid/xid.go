package xid

import "github.com/google/uuid"

// New returns a time-ordered UUID so ids sort roughly by creation.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
