// Package migration contains the ticket transformation and import pipeline:
// it merges a ticket's history into an ordered narrative, composes the GitHub
// import payload and drives the asynchronous import protocol to completion.
package migration

import (
	"context"

	"github.com/aerostitch/trac-hub/internal/logging"
)

// AttributeLookup is the single key-value lookup identity resolution needs,
// satisfied by the Trac store's session attribute accessor.
type AttributeLookup interface {
	SessionAttribute(ctx context.Context, sid, name string) (string, bool, error)
}

// Resolver maps Trac author handles to email addresses and, when configured,
// to GitHub at-mentions. Lookups are cached for the lifetime of the run.
type Resolver struct {
	lookup    AttributeLookup
	usernames map[string]string
	cache     map[string]string
}

// NewResolver creates a resolver. usernames maps resolved emails or raw
// handles to GitHub usernames and may be nil.
func NewResolver(lookup AttributeLookup, usernames map[string]string) *Resolver {
	return &Resolver{
		lookup:    lookup,
		usernames: usernames,
		cache:     make(map[string]string),
	}
}

// ResolveAuthor resolves a Trac handle to its display form. It never fails:
// an unknown handle, a missing email attribute or a lookup error all degrade
// to returning the handle itself. Misses are cached too, so a handle without
// an email costs one lookup per run.
func (r *Resolver) ResolveAuthor(ctx context.Context, handle string) string {
	resolved, cached := r.cache[handle]
	if !cached {
		email, found, err := r.lookup.SessionAttribute(ctx, handle, "email")
		if err != nil {
			logging.Debug("email lookup failed", "handle", handle, "error", err)
		}
		if found {
			resolved = email
		} else {
			resolved = handle
		}
		r.cache[handle] = resolved
	}

	if username, ok := r.usernames[resolved]; ok {
		return "@" + username
	}
	return resolved
}
