// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

// Package identity defines the caller identity record passed into the
// authorization and caching core on every check.
package identity

// User is the minimal identity supplied by the calling application.
// Role is the caller-reported role label; authoritative role membership
// comes from the RBAC assignment provider, not from this field.
type User struct {
	ID    string `json:"id" validate:"required"`
	Role  string `json:"role"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Name  string `json:"name,omitempty"`
}

// Valid reports whether the user carries an id.
func (u User) Valid() bool {
	return u.ID != ""
}
