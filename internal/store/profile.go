package store

import (
	"fmt"

	"github.com/bgunnarsson/tabled/internal/db"
	"github.com/bgunnarsson/tabled/internal/errors"
)

// Profile names the column set of the default table.
type Profile string

const (
	// ProfileGeneric is title plus three free text fields.
	ProfileGeneric Profile = "generic"
	// ProfileUsers is name and age, both required.
	ProfileUsers Profile = "users"
)

// Profiles lists the known profiles.
func Profiles() []Profile {
	return []Profile{ProfileGeneric, ProfileUsers}
}

// Columns returns the non-key columns of the profile.
func (p Profile) Columns() ([]db.Column, error) {
	switch p {
	case ProfileGeneric:
		return []db.Column{
			{Name: "title", Type: "TEXT"},
			{Name: "field1", Type: "TEXT"},
			{Name: "field2", Type: "TEXT"},
			{Name: "field3", Type: "TEXT"},
		}, nil
	case ProfileUsers:
		return []db.Column{
			{Name: "name", Type: "TEXT", NotNull: true},
			{Name: "age", Type: "INTEGER", NotNull: true},
		}, nil
	}
	return nil, errors.NewInvalid("open", fmt.Sprintf("unknown profile %q", string(p)))
}
