package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWithLogger_KeepsExisting(t *testing.T) {
	ctx, rlog := ContextWithLogger(context.Background())
	require.NotNil(t, rlog)

	ctx2, rlog2 := ContextWithLogger(ctx)
	assert.Equal(t, ctx, ctx2)
	assert.Same(t, rlog, rlog2)
	assert.NotEmpty(t, RequestIDFromContext(ctx))
}

func TestContextWithLoggerIdentity(t *testing.T) {
	ctx, _ := ContextWithLogger(context.Background())
	id := RequestIDFromContext(ctx)

	ctx, rlog := ContextWithLoggerIdentity(ctx, "client-42")
	assert.Equal(t, "client-42", rlog.Data[identityLoggerKey])
	assert.Equal(t, id, RequestIDFromContext(ctx))
	assert.Same(t, rlog, FromContext(ctx))
}

func TestFromContext_NoLogger(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestAddRequestID(t *testing.T) {
	router := mux.NewRouter()
	AddRequestID(router)

	var seen string
	router.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}
