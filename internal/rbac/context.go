// Bastion - Authorization, Audit, and Caching Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bastion

package rbac

import "time"

// UserContext describes the caller. Attributes holds extension fields
// addressed as "attr.<key>".
type UserContext struct {
	ID         string                 `json:"id,omitempty"`
	Role       string                 `json:"role,omitempty"`
	Email      string                 `json:"email,omitempty"`
	Name       string                 `json:"name,omitempty"`
	Department string                 `json:"department,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// ResourceContext describes the resource being accessed.
type ResourceContext struct {
	ID             string                 `json:"id,omitempty"`
	Type           string                 `json:"type,omitempty"`
	Owner          string                 `json:"owner,omitempty"`
	Classification string                 `json:"classification,omitempty"`
	Status         string                 `json:"status,omitempty"`
	Attributes     map[string]interface{} `json:"attributes,omitempty"`
}

// LocationContext describes where the request originates.
type LocationContext struct {
	Country    string                 `json:"country,omitempty"`
	Region     string                 `json:"region,omitempty"`
	IP         string                 `json:"ip,omitempty"`
	Network    string                 `json:"network,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// EvalContext is the optional payload conditions are evaluated against.
// A zero Time means "now" on the engine clock.
type EvalContext struct {
	User     *UserContext     `json:"user,omitempty"`
	Resource *ResourceContext `json:"resource,omitempty"`
	Location *LocationContext `json:"location,omitempty"`
	Time     time.Time        `json:"time,omitempty"`
}
