// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/tablegate/core"
	"github.com/relabs-tech/tablegate/core/access"
	"github.com/relabs-tech/tablegate/core/csql"
	"github.com/relabs-tech/tablegate/core/logger"
	"github.com/relabs-tech/tablegate/core/query"
	"github.com/relabs-tech/tablegate/core/schema"
)

// Backend is the table gateway
type Backend struct {
	db           *csql.DB
	router       *mux.Router
	registry     *schema.Registry
	query        *query.Builder
	gate         *access.Gate
	notifier     core.Notifier
	queryTimeout time.Duration
	rateLimiter  *rateLimiter
}

// Builder is a builder helper for the Backend
type Builder struct {
	// DB is the connection pool. This is mandatory.
	DB *csql.DB
	// Router is a mux router. This is mandatory.
	Router *mux.Router
	// Registry is the allow-list of exposed tables. This is mandatory.
	Registry *schema.Registry
	// CredentialStore resolves client secrets. Defaults to the authorization
	// table named in the registry.
	CredentialStore access.CredentialStore
	// Notifier receives a notification for every committed create, edit and delete. This is optional.
	Notifier core.Notifier
	// QueryTimeout bounds every statement or transaction. Zero means no timeout
	// besides the request context.
	QueryTimeout time.Duration
	// RateLimits limits requests per client IP and route. The zero value disables rate limiting.
	RateLimits RateLimitConfiguration
	// DisableCompression switches off gzip compression of responses
	DisableCompression bool
}

// New realizes the actual backend. It adds the table routes and the
// supporting middleware to the router
func New(bb *Builder) *Backend {
	if bb.DB == nil {
		panic("DB is missing")
	}
	if bb.Router == nil {
		panic("Router is missing")
	}
	if bb.Registry == nil {
		panic("Registry is missing")
	}

	store := bb.CredentialStore
	if store == nil {
		store = access.NewSQLCredentialStore(bb.DB, bb.Registry.Credentials)
	}

	b := &Backend{
		db:           bb.DB,
		router:       bb.Router,
		registry:     bb.Registry,
		query:        query.New(bb.DB.Dialect),
		gate:         access.NewGate(store, bb.QueryTimeout),
		notifier:     bb.Notifier,
		queryTimeout: bb.QueryTimeout,
		rateLimiter:  newRateLimiter(bb.RateLimits),
	}

	b.handleRecovery()
	logger.AddRequestID(b.router)
	b.handleCORS()
	if !bb.DisableCompression {
		b.handleCompression()
	}
	b.handleVersion(b.router)
	b.handleHealth(b.router)
	b.handleRoutes(b.router)
	b.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	b.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return b
}

// Close releases the resources held by the backend. The connection pool is owned
// by the caller and stays open.
func (b *Backend) Close() error {
	if closer, ok := b.notifier.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Registry returns the schema registry of this backend
func (b *Backend) Registry() *schema.Registry {
	return b.registry
}

// queryContext derives the context for one statement or transaction
func (b *Backend) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.queryTimeout > 0 {
		return context.WithTimeout(ctx, b.queryTimeout)
	}
	return context.WithCancel(ctx)
}

// notify sends a change notification. Failures are logged only, the change is already committed.
func (b *Backend) notify(ctx context.Context, table string, operation core.Operation, payload []byte) {
	if b.notifier == nil {
		return
	}
	if err := b.notifier.Notify(ctx, table, operation, payload); err != nil {
		logger.FromContext(ctx).WithError(err).Errorln("cannot send change notification")
	}
}
