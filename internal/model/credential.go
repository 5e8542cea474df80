package model

import "time"

// Credential is a bearer token obtained from the authorization endpoint,
// with the absolute instant it is expected to stop working.
//
// The expiry is advisory only: the token is offered to the calendar API even
// past it, and a 401 response is the sole authoritative signal that the
// credential is dead.
type Credential struct {
	Token  string
	Expiry time.Time
}

// ExpiredBy reports whether the advisory expiry has passed at the given
// instant. Callers may use this for display, never for invalidation.
func (c Credential) ExpiredBy(now time.Time) bool {
	return !c.Expiry.IsZero() && now.After(c.Expiry)
}
