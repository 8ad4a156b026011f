// Package id generates node identities: a v4 UUID rendered as the
// canonical 36-character hyphenated form, grounded on the teacher
// corpus's use of github.com/google/uuid for store/peer identifiers.
package id

import "github.com/google/uuid"

// New returns a fresh random identifier suitable for Options.ID.
func New() string {
	return uuid.New().String()
}
