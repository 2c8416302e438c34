package user

import (
	"fmt"
	"strings"
)

// Role is the closed set of account roles. Anything else is rejected at parse time.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

type Capability string

const (
	CapReserve          Capability = "reservations:create"
	CapCancelAnyBooking Capability = "reservations:cancel_any"
	CapViewAllBookings  Capability = "reservations:view_all"
	CapVerifyPayment    Capability = "payments:verify"
	CapFailPayment      Capability = "payments:fail"
	CapViewAllPayments  Capability = "payments:view_all"
	CapJoinWaitlist     Capability = "waitlist:join"
	CapManageWaitlist   Capability = "waitlist:manage"
	CapRunMaintenance   Capability = "maintenance"
)

var roleCapabilities = map[Role][]Capability{
	RoleCustomer: {
		CapReserve, CapVerifyPayment, CapJoinWaitlist,
	},
	RoleStaff: {
		CapReserve, CapVerifyPayment, CapJoinWaitlist,
		CapViewAllBookings, CapViewAllPayments, CapFailPayment,
	},
	RoleManager: {
		CapReserve, CapVerifyPayment, CapJoinWaitlist,
		CapViewAllBookings, CapViewAllPayments, CapFailPayment,
		CapCancelAnyBooking, CapManageWaitlist,
	},
	RoleAdmin: {
		CapReserve, CapVerifyPayment, CapJoinWaitlist,
		CapViewAllBookings, CapViewAllPayments, CapFailPayment,
		CapCancelAnyBooking, CapManageWaitlist, CapRunMaintenance,
	},
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleCapabilities[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

func (r Role) Can(c Capability) bool {
	for _, have := range roleCapabilities[r] {
		if have == c {
			return true
		}
	}
	return false
}

func (r Role) Capabilities() []Capability {
	caps := roleCapabilities[r]
	out := make([]Capability, len(caps))
	copy(out, caps)
	return out
}

// Principal is the authenticated caller as seen by handlers.
type Principal struct {
	ID    int64
	Email string
	Role  Role
}

func (p *Principal) Can(c Capability) bool {
	return p != nil && p.Role.Can(c)
}

// Owns reports whether the principal may act on a record belonging to ownerID,
// either as the owner or through the given override capability.
func (p *Principal) Owns(ownerID int64, override Capability) bool {
	if p == nil {
		return false
	}
	return p.ID == ownerID || p.Role.Can(override)
}
