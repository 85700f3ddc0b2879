package appointment

import "fmt"

var transitions = map[Status][]Status{
	StatusScheduled:  {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusNoShow},
	StatusCompleted:  nil,
	StatusCancelled:  nil,
	StatusNoShow:     nil,
}

var staff = []Role{RoleAdmin, RoleFrontDesk, RolePractitioner}

// permits maps a target status to the roles that may request it. A nil source
// list means any source the edge set allows.
var permits = map[Status]map[Role][]Status{
	StatusConfirmed:  rolesFrom(staff, nil),
	StatusInProgress: rolesFrom(staff, nil),
	StatusCompleted:  rolesFrom(staff, nil),
	StatusCancelled: merge(
		rolesFrom(staff, nil),
		rolesFrom([]Role{RoleClient}, []Status{StatusScheduled, StatusConfirmed}),
	),
	// no-show is an administrative mark, not a forward step
	StatusNoShow: rolesFrom([]Role{RoleAdmin, RoleFrontDesk}, nil),
}

func rolesFrom(roles []Role, from []Status) map[Role][]Status {
	m := make(map[Role][]Status, len(roles))
	for _, r := range roles {
		m[r] = from
	}
	return m
}

func merge(ms ...map[Role][]Status) map[Role][]Status {
	out := make(map[Role][]Status)
	for _, m := range ms {
		for r, from := range m {
			out[r] = from
		}
	}
	return out
}

// IsTerminal reports whether s has no outgoing transitions.
func IsTerminal(s Status) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CheckTransition decides whether role may move an appointment from one
// status to another. Terminal or unknown states fail with
// ErrInvalidTransition, a role outside the permitted set with
// ErrUnauthorized, and a missing edge with ErrInvalidTransition.
func CheckTransition(from, to Status, role Role) error {
	next, known := transitions[from]
	if !known || len(next) == 0 {
		return fmt.Errorf("%w: %s is terminal or unknown", ErrInvalidTransition, from)
	}
	roles, known := permits[to]
	if !known {
		return fmt.Errorf("%w: unknown target %s", ErrInvalidTransition, to)
	}

	allowedFrom, ok := roles[role]
	if !ok {
		return fmt.Errorf("%w: %s cannot move appointments to %s", ErrUnauthorized, role, to)
	}
	if allowedFrom != nil && !containsStatus(allowedFrom, from) {
		return fmt.Errorf("%w: %s cannot move appointments from %s to %s", ErrUnauthorized, role, from, to)
	}

	if !containsStatus(next, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
