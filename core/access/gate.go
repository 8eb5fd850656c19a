package access

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/tablegate/core/logger"
)

// Gate turns the client-secret of a request into a permission tuple. It is
// fail-closed: a missing secret, an unknown secret, an ambiguous match or an
// unavailable credential store all yield no permissions. The cause is only
// visible in the log.
type Gate struct {
	store   CredentialStore
	timeout time.Duration
}

// NewGate returns a gate backed by the credential store. A positive timeout
// bounds every lookup; a lookup running into it counts as unavailable.
func NewGate(store CredentialStore, timeout time.Duration) *Gate {
	return &Gate{store: store, timeout: timeout}
}

// Permissions looks up the secret and returns the resulting permission tuple
func (g *Gate) Permissions(ctx context.Context, secret string) Permissions {
	rlog := logger.FromContext(ctx)
	if secret == "" {
		rlog.Infoln("authorization denied: no client secret")
		return Permissions{}
	}

	credential := g.lookup(ctx, secret)
	switch credential.Lookup {
	case LookupFound:
		rlog.WithField("permissions", credential.Permissions).Debugln("credential found")
		return credential.Permissions
	case LookupNotFound:
		rlog.Infoln("authorization denied: credential not found")
	case LookupAmbiguous:
		rlog.Warnln("authorization denied: client secret matches more than one credential")
	case LookupUnavailable:
		rlog.WithError(credential.Err).Errorln("authorization denied: credential store unavailable")
	default:
		rlog.Errorf("authorization denied: unexpected lookup result %s", credential.Lookup)
	}
	return Permissions{}
}

func (g *Gate) lookup(ctx context.Context, secret string) Credential {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	credential := g.store.Lookup(ctx, secret)
	if credential.Lookup != LookupUnavailable && ctx.Err() != nil {
		return Credential{Lookup: LookupUnavailable, Err: ctx.Err()}
	}
	return credential
}

// Authorize evaluates the request headers and returns the authorization for the request
func (g *Gate) Authorize(ctx context.Context, h http.Header) *Authorization {
	auth := clientHeaders(h)
	logger.FromContext(ctx).WithFields(logrus.Fields{
		"client_name":  auth.ClientName,
		"organization": auth.Organization,
		"scope":        auth.Scope,
	}).Debugln("client headers")
	auth.Permissions = g.Permissions(ctx, h.Get(HeaderClientSecret))
	return auth
}

// Middleware returns a middleware which authorizes every request once and
// stores the authorization in the request context. The client-id header
// becomes the identity of the request logger.
func (g *Gate) Middleware() mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if clientID := r.Header.Get(HeaderClientID); clientID != "" {
				ctx, _ = logger.ContextWithLoggerIdentity(ctx, clientID)
			}
			auth := g.Authorize(ctx, r.Header)
			h.ServeHTTP(w, r.WithContext(ContextWithAuthorization(ctx, auth)))
		})
	}
}
