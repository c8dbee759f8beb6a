package entities

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

// ToStatus parses a raw string into a Status, rejecting unknown values.
func ToStatus(s string) (Status, error) {
	status := Status(s)
	if _, ok := transitions[status]; ok {
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// transitions lists the legal edges of the order state machine together with
// the roles permitted to request each edge. Customers act only on their own
// orders and riders only on orders assigned to them; that ownership check is
// enforced by the service on top of this table.
var transitions = map[Status]map[Status][]Role{
	StatusPending: {
		StatusPaid:      {RoleCustomer, RoleAdmin},
		StatusCancelled: {RoleCustomer, RoleAdmin},
	},
	StatusPaid: {
		StatusShipped:   {RoleAdmin},
		StatusCancelled: {RoleAdmin},
	},
	StatusShipped: {
		StatusDelivered: {RoleAdmin, RoleRider},
		StatusCancelled: {RoleAdmin},
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// CanTransitionTo reports whether the edge s -> target exists, regardless of
// who is asking.
func (s Status) CanTransitionTo(target Status) bool {
	_, ok := transitions[s][target]
	return ok
}

// RoleAllowed reports whether role may request the edge s -> target.
// Returns false for edges that do not exist.
func (s Status) RoleAllowed(target Status, role Role) bool {
	for _, r := range transitions[s][target] {
		if r == role {
			return true
		}
	}
	return false
}
