package auth

import (
	"errors"
	"fmt"
)

// ErrForbidden is returned when a role may not perform an action.
var ErrForbidden = errors.New("forbidden")

// Role is the caller's platform role, carried in the token.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleBillingAdmin Role = "billing-admin"
	RolePM           Role = "pm"
	RoleEmployee     Role = "employee"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleBillingAdmin, RolePM, RoleEmployee:
		return true
	}
	return false
}

// Action is a class of estimate operations.
type Action string

const (
	// ActionView reads estimates, line items, insights and summaries.
	ActionView Action = "view"
	// ActionEdit changes line items, multipliers and estimate status.
	ActionEdit Action = "edit"
	// ActionPrice changes pricing: rate overrides, referral, margin override
	// and recalculation.
	ActionPrice Action = "price"
	// ActionManage maintains the role and people directory.
	ActionManage Action = "manage"
)

// Gate maps roles to the actions they are granted.
type Gate struct {
	grants map[Role]map[Action]bool
}

// NewGate returns a gate with the default grants:
//
//	admin          view, edit, price, manage
//	billing-admin  view, edit, price, manage
//	pm             view, edit, price
//	employee       view
func NewGate() *Gate {
	g := &Gate{grants: make(map[Role]map[Action]bool)}
	g.Grant(RoleAdmin, ActionView, ActionEdit, ActionPrice, ActionManage)
	g.Grant(RoleBillingAdmin, ActionView, ActionEdit, ActionPrice, ActionManage)
	g.Grant(RolePM, ActionView, ActionEdit, ActionPrice)
	g.Grant(RoleEmployee, ActionView)
	return g
}

// Grant adds actions to a role.
func (g *Gate) Grant(role Role, actions ...Action) {
	if g.grants[role] == nil {
		g.grants[role] = make(map[Action]bool)
	}
	for _, a := range actions {
		g.grants[role][a] = true
	}
}

// Revoke removes actions from a role.
func (g *Gate) Revoke(role Role, actions ...Action) {
	for _, a := range actions {
		delete(g.grants[role], a)
	}
}

// Authorize returns ErrMissingToken without claims and a wrapped
// ErrForbidden when the caller's role lacks the action.
func (g *Gate) Authorize(claims *Claims, action Action) error {
	if claims == nil {
		return ErrMissingToken
	}
	if !g.grants[claims.Role][action] {
		return fmt.Errorf("%w: role %q cannot %s", ErrForbidden, claims.Role, action)
	}
	return nil
}

// Can is a convenience wrapper returning bool instead of error.
func (g *Gate) Can(claims *Claims, action Action) bool {
	return g.Authorize(claims, action) == nil
}
