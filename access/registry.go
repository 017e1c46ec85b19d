// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package access implements role-based authorization. Roles are 32-byte
// identifiers; each role is held by any number of principals and only
// holders of the admin role may grant or revoke.
package access

import (
	"errors"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

var ErrNotAdmin = errors.New("caller lacks admin role")

// RoleID derives a role identifier from its name.
func RoleID(name string) common.Hash {
	h := blake3.New()
	h.Write([]byte(name))
	var id common.Hash
	h.Digest().Read(id[:])
	return id
}

// RoleAdmin gates grant and revoke on the registry itself.
var RoleAdmin = RoleID("genius.access.admin")

// Registry maps roles to their holders.
type Registry struct {
	mu    sync.RWMutex
	roles map[common.Hash]map[common.Address]bool
}

// NewRegistry creates a registry with admin as the initial holder of
// the admin role.
func NewRegistry(admin common.Address) *Registry {
	r := &Registry{roles: make(map[common.Hash]map[common.Address]bool)}
	r.roles[RoleAdmin] = map[common.Address]bool{admin: true}
	return r
}

// HasRole reports whether principal holds role.
func (r *Registry) HasRole(role common.Hash, principal common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roles[role][principal]
}

// GrantRole gives principal the role. Caller must hold the admin role.
func (r *Registry) GrantRole(caller common.Address, role common.Hash, principal common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.roles[RoleAdmin][caller] {
		return ErrNotAdmin
	}
	holders, ok := r.roles[role]
	if !ok {
		holders = make(map[common.Address]bool)
		r.roles[role] = holders
	}
	holders[principal] = true
	return nil
}

// RevokeRole removes the role from principal. Caller must hold the
// admin role. Revoking a role the principal does not hold is a no-op.
func (r *Registry) RevokeRole(caller common.Address, role common.Hash, principal common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.roles[RoleAdmin][caller] {
		return ErrNotAdmin
	}
	delete(r.roles[role], principal)
	return nil
}
