// Package repository implements the MySQL persistence layer of the sync
// backend: users and refresh tokens for authentication, organizations and
// memberships for tenancy, and the per-tenant state, backup and branding
// rows the agents read and write. This file defines sentinel errors reused
// across repositories so handlers can map failures to HTTP status codes.
package repository

import "errors"

// ErrForbidden is returned when the caller is not a member of the
// organization they address, or lacks the role an operation requires
// (e.g. editing branding without owner or admin rights). Handlers
// translate this into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write collides with existing state, such
// as creating an organization whose name is already taken by the same
// owner. Handlers translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
