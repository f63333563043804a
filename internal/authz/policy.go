// Package authz decides what a session may do.
//
// The moderation pipeline never compares emails itself; it asks a Policy whether
// the acting session holds the Moderate capability. The policy is built once from
// configuration and injected, and it is consulted on every privileged call.
package authz

import (
	"strings"

	"github.com/sakif/pisure/internal/model"
)

// Capability is a single permission.
type Capability uint8

const (
	// Upload lets a session submit new assets.
	Upload Capability = 1 << iota
	// Moderate lets a session approve and reject pending assets.
	Moderate
)

func (c Capability) String() string {
	switch c {
	case Upload:
		return "upload"
	case Moderate:
		return "moderate"
	default:
		return "unknown"
	}
}

// Set is a bit set of capabilities.
type Set uint8

// Has reports whether c is in the set.
func (s Set) Has(c Capability) bool {
	return s&Set(c) != 0
}

// With returns the set with c added.
func (s Set) With(c Capability) Set {
	return s | Set(c)
}

// Policy maps a session to its capabilities. Implementations must be pure.
type Policy interface {
	Capabilities(session model.Session) Set
}

// Can reports whether session holds capability c under p.
func Can(p Policy, session model.Session, c Capability) bool {
	return p.Capabilities(session).Has(c)
}

// IsAdmin is the administrator predicate.
func IsAdmin(p Policy, session model.Session) bool {
	return Can(p, session, Moderate)
}

// AdminList grants Upload to every signed-in session and Moderate to sessions
// whose email is on the list.
type AdminList struct {
	admins map[string]struct{}
}

var _ Policy = (*AdminList)(nil)

// NewAdminList builds a policy from administrator emails. Emails are trimmed and
// compared case-insensitively; blanks are ignored.
func NewAdminList(emails ...string) *AdminList {
	admins := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = normalizeEmail(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &AdminList{admins: admins}
}

func (p *AdminList) Capabilities(session model.Session) Set {
	if !session.Authenticated() {
		return 0
	}
	caps := Set(0).With(Upload)
	if _, ok := p.admins[normalizeEmail(session.Email)]; ok {
		caps = caps.With(Moderate)
	}
	return caps
}

// Len returns the number of administrators.
func (p *AdminList) Len() int {
	return len(p.admins)
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
