package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/ledgerfeed/internal/chain"
	"github.com/R3E-Network/ledgerfeed/internal/errors"
	"github.com/R3E-Network/ledgerfeed/internal/httpapi"
	"github.com/R3E-Network/ledgerfeed/internal/ledger"
	"github.com/R3E-Network/ledgerfeed/internal/middleware"
	"github.com/R3E-Network/ledgerfeed/internal/social"
	"github.com/R3E-Network/ledgerfeed/pkg/testutil"
)

var identity = testutil.Identity

func newServer(t *testing.T) (*Client, *chain.MemoryLedger) {
	t.Helper()
	program := identity("program")
	mem := chain.NewMemoryLedger(program, nil)
	svc := social.New(social.Config{Ledger: mem, Program: program})
	srv := httptest.NewServer(httpapi.NewRouter(svc, httpapi.Options{}))
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{BaseURL: srv.URL + "/"}), mem
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(ClientConfig{BaseURL: "http://localhost:8080/"})

	assert.Equal(t, "http://localhost:8080", c.baseURL)
	assert.Equal(t, 2, c.maxRetries)
	assert.Equal(t, 500*time.Millisecond, c.backoff)
}

func TestClient_RoundTrip(t *testing.T) {
	c, mem := newServer(t)
	ctx := context.Background()
	alice, bob := identity("alice"), identity("bob")

	require.NoError(t, c.CreateProfile(ctx, alice, "alice"))
	require.NoError(t, c.CreateProfile(ctx, bob, "bob"))
	require.NoError(t, c.CreateFollowEdge(ctx, alice, bob))

	mem.Clock = testutil.FixedClock(500)
	item, err := c.CreatePost(ctx, bob, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", item.Text)
	assert.True(t, item.Pending)

	feed, err := c.Feed(ctx, alice, true)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "bob", feed[0].AuthorName)
	assert.Equal(t, int64(500), feed[0].Timestamp)

	page, err := c.UserPage(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, "bob", page.Username)
	assert.Len(t, page.Posts, 1)

	followees, err := c.Followees(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []ledger.Identity{bob}, followees)

	following, err := c.IsFollowing(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, following)
}

func TestClient_ErrorsKeepServerCode(t *testing.T) {
	c, _ := newServer(t)
	ctx := context.Background()

	_, err := c.UserPage(ctx, identity("nobody"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	se := errors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, http.StatusNotFound, se.HTTPStatus)

	require.NoError(t, c.CreateProfile(ctx, identity("alice"), "alice"))
	err = c.CreateProfile(ctx, identity("alice"), "again")
	assert.True(t, errors.IsAlreadyExists(err))
}

func TestClient_RetriesThrottledRequests(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get(middleware.RequestIDHeader))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Backoff: time.Millisecond})
	item, err := c.CreatePost(context.Background(), identity("a"), "ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", item.Text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryFailedWrites(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, Backoff: time.Millisecond})
	err := c.CreateFollowEdge(context.Background(), identity("a"), identity("b"))
	require.Error(t, err)
	se := errors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, errors.CodeInternal, se.Code)
	assert.Equal(t, "upstream down", se.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err = c.Followees(context.Background(), identity("a"))
	require.Error(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}
