package access

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	credentials map[string]Credential
	calls       int
	secrets     []string
}

func (s *fakeStore) Lookup(ctx context.Context, secret string) Credential {
	s.calls++
	s.secrets = append(s.secrets, secret)
	c, ok := s.credentials[secret]
	if !ok {
		return Credential{Lookup: LookupNotFound}
	}
	return c
}

func TestGate_FailClosed(t *testing.T) {
	store := &fakeStore{credentials: map[string]Credential{
		"all":         {Lookup: LookupFound, Permissions: Permissions{true, true, true, true}},
		"broken":      {Lookup: LookupUnavailable, Err: errors.New("connection refused"), Permissions: Permissions{Read: true}},
		"ambiguous":   {Lookup: LookupAmbiguous, Permissions: Permissions{Read: true}},
		"stale":       {Lookup: LookupNotFound, Permissions: Permissions{Read: true}},
		"read-create": {Lookup: LookupFound, Permissions: Permissions{Read: true, Create: true}},
	}}
	gate := NewGate(store, 0)
	ctx := context.Background()

	assert.Equal(t, Permissions{true, true, true, true}, gate.Permissions(ctx, "all"))
	assert.Equal(t, Permissions{Read: true, Create: true}, gate.Permissions(ctx, "read-create"))
	for _, secret := range []string{"broken", "ambiguous", "stale", "nobody"} {
		assert.Equal(t, Permissions{}, gate.Permissions(ctx, secret), secret)
	}

	calls := store.calls
	assert.Equal(t, Permissions{}, gate.Permissions(ctx, ""))
	assert.Equal(t, calls, store.calls, "an empty secret is never looked up")
}

func TestGate_Middleware(t *testing.T) {
	store := &fakeStore{credentials: map[string]Credential{
		"s3cret": {Lookup: LookupFound, Permissions: Permissions{Read: true}},
	}}
	router := mux.NewRouter()
	router.Use(NewGate(store, 0).Middleware())

	var auth *Authorization
	router.HandleFunc("/table/{table_name}", func(w http.ResponseWriter, r *http.Request) {
		auth = AuthorizationFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/table/customers", nil)
	req.Header.Set(HeaderClientSecret, "s3cret")
	req.Header.Set(HeaderClientID, "id-1")
	req.Header.Set(HeaderClientName, "acme portal")
	req.Header.Set(HeaderOrganization, "acme")
	req.Header.Set(HeaderScope, "customers")
	router.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, auth)
	assert.Equal(t, &Authorization{
		ClientID:     "id-1",
		ClientName:   "acme portal",
		Organization: "acme",
		Scope:        "customers",
		Permissions:  Permissions{Read: true},
	}, auth)
	assert.Equal(t, 1, store.calls, "one lookup per request")
	assert.Equal(t, []string{"s3cret"}, store.secrets)

	req = httptest.NewRequest(http.MethodGet, "/table/customers", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, auth)
	assert.Equal(t, Permissions{}, auth.Permissions)
}

type deadlineStore struct {
	deadline    time.Time
	hasDeadline bool
	block       bool
}

func (s *deadlineStore) Lookup(ctx context.Context, secret string) Credential {
	s.deadline, s.hasDeadline = ctx.Deadline()
	if s.block {
		<-ctx.Done()
	}
	return Credential{Lookup: LookupFound, Permissions: Permissions{true, true, true, true}}
}

func TestGate_LookupTimeout(t *testing.T) {
	store := &deadlineStore{}
	start := time.Now()
	assert.Equal(t, Permissions{true, true, true, true}, NewGate(store, 50*time.Millisecond).Permissions(context.Background(), "all"))
	require.True(t, store.hasDeadline, "the lookup is bounded by the timeout")
	assert.WithinDuration(t, start.Add(50*time.Millisecond), store.deadline, time.Second)

	store = &deadlineStore{}
	NewGate(store, 0).Permissions(context.Background(), "all")
	assert.False(t, store.hasDeadline, "a zero timeout leaves the request context alone")

	store = &deadlineStore{block: true}
	assert.Equal(t, Permissions{}, NewGate(store, 10*time.Millisecond).Permissions(context.Background(), "all"),
		"a lookup running into the timeout is denied")
}
