/*
Package access provides the credential lookup and the authorization gate.

Every request to a table route carries a client-secret header. The gate looks
the secret up in the authorization table and derives a permission tuple
(read, create, edit, delete). Any failure collapses to no permissions at all.
*/
package access

import (
	"context"
	"net/http"

	"github.com/relabs-tech/tablegate/core"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

// the predefined context key
const (
	contextKeyAuthorization contextKey = "_authorization_"
)

// request headers read by the gate
const (
	HeaderClientSecret = "client-secret"
	HeaderClientID     = "client-id"
	HeaderClientName   = "client-name"
	HeaderOrganization = "organization"
	HeaderScope        = "scope"
)

// Permissions is the permission tuple of a request
type Permissions struct {
	Read   bool `json:"read"`
	Create bool `json:"create"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

// Allows returns true if the permission bit for the operation is set
func (p Permissions) Allows(operation core.Operation) bool {
	switch operation {
	case core.OperationRead:
		return p.Read
	case core.OperationCreate:
		return p.Create
	case core.OperationEdit:
		return p.Edit
	case core.OperationDelete:
		return p.Delete
	}
	return false
}

/*
Authorization is a context object which stores the outcome of the gate for
the current request, together with the informational client headers.

Authorizations are added to a request context with

	ctx = access.ContextWithAuthorization(ctx, auth)

and retrieved with

	auth := access.AuthorizationFromContext(ctx)
*/
type Authorization struct {
	ClientID     string      `json:"client_id,omitempty"`
	ClientName   string      `json:"client_name,omitempty"`
	Organization string      `json:"organization,omitempty"`
	Scope        string      `json:"scope,omitempty"`
	Permissions  Permissions `json:"permissions"`
}

// IsAuthorized returns true if the authorization permits the operation. A nil
// authorization permits nothing.
func (a *Authorization) IsAuthorized(operation core.Operation) bool {
	if a == nil {
		return false
	}
	return a.Permissions.Allows(operation)
}

// ContextWithAuthorization returns a new context with this authorization added to it
func ContextWithAuthorization(ctx context.Context, auth *Authorization) context.Context {
	return context.WithValue(ctx, contextKeyAuthorization, auth)
}

// AuthorizationFromContext retrieves an authorization from the context
func AuthorizationFromContext(ctx context.Context) *Authorization {
	a, ok := ctx.Value(contextKeyAuthorization).(*Authorization)
	if ok {
		return a
	}
	return nil
}

// clientHeaders extracts the informational client headers
func clientHeaders(h http.Header) *Authorization {
	return &Authorization{
		ClientID:     h.Get(HeaderClientID),
		ClientName:   h.Get(HeaderClientName),
		Organization: h.Get(HeaderOrganization),
		Scope:        h.Get(HeaderScope),
	}
}
