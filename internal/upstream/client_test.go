package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiforge-ai/apiforge/internal/endpoint"
	"github.com/apiforge-ai/apiforge/internal/errors"
	"github.com/apiforge-ai/apiforge/internal/registry"
	"github.com/apiforge-ai/apiforge/internal/tools"
)

func userDescriptor() endpoint.Descriptor {
	return endpoint.Descriptor{
		Method:          "GET",
		Path:            "/users/{user_id}",
		Selected:        true,
		ToolDescription: "Fetch a user",
		Parameters: []endpoint.Parameter{
			{Name: "user_id", Location: endpoint.LocationPath, Type: "string", Description: "User id", Required: true},
			{Name: "verbose", Location: endpoint.LocationQuery, Type: "boolean", Description: "Detail"},
			{Name: "tags", Location: endpoint.LocationQuery, Type: "array", Description: "Tags"},
			{Name: "Authorization", Location: endpoint.LocationHeader, Type: "string", Description: "Auth header"},
		},
	}
}

func userDefinition() tools.Definition {
	def, err := endpoint.Compile(userDescriptor())
	if err != nil {
		panic(err)
	}
	return def
}

func TestClient_Execute_SynthesizesRequest(t *testing.T) {
	t.Parallel()

	var captured *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u-1","name":"Ada"}`))
	}))
	defer srv.Close()

	c := NewClient(hclog.NewNullLogger())
	outcome, err := c.Execute(context.Background(), srv.URL, userDefinition(), userDescriptor(), map[string]any{
		"user_id":       "u 1",
		"verbose":       true,
		"tags":          []any{"a", "b"},
		"Authorization": "Bearer tok",
	})
	require.NoError(t, err)

	assert.True(t, outcome.OK())
	assert.Equal(t, http.StatusOK, outcome.Status)
	assert.JSONEq(t, `{"id":"u-1","name":"Ada"}`, string(outcome.Body))

	require.NotNil(t, captured)
	// Path value percent-encoded into the template.
	assert.Equal(t, "/users/u%201", captured.URL.EscapedPath())
	// Arrays become repeated query entries; booleans stringified.
	assert.Equal(t, []string{"a", "b"}, captured.URL.Query()["tags"])
	assert.Equal(t, "true", captured.URL.Query().Get("verbose"))
	// Header-located values become request headers.
	assert.Equal(t, "Bearer tok", captured.Header.Get("Authorization"))
}

func TestClient_Execute_ObjectQueryValuesJSONEncoded(t *testing.T) {
	t.Parallel()

	desc := endpoint.Descriptor{
		Method:          "GET",
		Path:            "/search",
		Selected:        true,
		ToolDescription: "Search items",
		Parameters: []endpoint.Parameter{
			{Name: "filter", Location: endpoint.LocationQuery, Type: "object", Description: "Filter"},
			{Name: "sorts", Location: endpoint.LocationQuery, Type: "array", Description: "Sort keys"},
		},
	}
	def, err := endpoint.Compile(desc)
	require.NoError(t, err)

	var captured *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(hclog.NewNullLogger())
	_, err = c.Execute(context.Background(), srv.URL, def, desc, map[string]any{
		"filter": map[string]any{"status": "open", "limit": float64(5)},
		"sorts":  []any{map[string]any{"field": "name", "dir": "asc"}},
	})
	require.NoError(t, err)

	// Structured values travel as JSON, not Go's map formatting.
	require.NotNil(t, captured)
	assert.JSONEq(t, `{"status":"open","limit":5}`, captured.URL.Query().Get("filter"))
	assert.JSONEq(t, `{"field":"name","dir":"asc"}`, captured.URL.Query().Get("sorts"))
}

func TestClient_Execute_BodyParameters(t *testing.T) {
	t.Parallel()

	desc := endpoint.Descriptor{
		Method:          "POST",
		Path:            "/orders",
		Selected:        true,
		ToolDescription: "Create an order",
		Parameters: []endpoint.Parameter{
			{Name: "item", Location: endpoint.LocationBody, Type: "string", Description: "Item", Required: true},
			{Name: "count", Location: endpoint.LocationBody, Type: "integer", Description: "Count"},
			{Name: "note", Location: endpoint.LocationBody, Type: "string", Description: "Note"},
		},
	}
	def, err := endpoint.Compile(desc)
	require.NoError(t, err)

	var gotBody map[string]any
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(hclog.NewNullLogger())
	outcome, err := c.Execute(context.Background(), srv.URL, def, desc, map[string]any{
		"item":  "widget",
		"count": float64(3),
		// note absent: optional body fields are omitted.
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, outcome.Status)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, map[string]any{"item": "widget", "count": float64(3)}, gotBody)
}

func TestClient_Execute_MissingRequiredIssuesNoCall(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewClient(hclog.NewNullLogger())
	_, err := c.Execute(context.Background(), srv.URL, userDefinition(), userDescriptor(), map[string]any{})

	require.ErrorIs(t, err, errors.ErrMissingParameter)
	assert.Contains(t, err.Error(), "user_id")
	assert.Equal(t, int32(0), calls.Load(), "no HTTP call may be attempted")
}

func TestClient_Execute_UnresolvedPlaceholderFatal(t *testing.T) {
	t.Parallel()

	// Descriptor whose path declares a placeholder no parameter can fill.
	desc := endpoint.Descriptor{
		Method:          "GET",
		Path:            "/users/{user_id}/posts/{post_id}",
		Selected:        true,
		ToolDescription: "Broken",
		Parameters: []endpoint.Parameter{
			{Name: "user_id", Location: endpoint.LocationPath, Type: "string", Description: "User id", Required: true},
		},
	}
	def, err := endpoint.Compile(desc)
	require.NoError(t, err)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewClient(hclog.NewNullLogger())
	_, err = c.Execute(context.Background(), srv.URL, def, desc, map[string]any{"user_id": "u-1"})

	require.ErrorIs(t, err, errors.ErrConfiguration)
	assert.Contains(t, err.Error(), "{post_id}")
	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_Execute_NonJSONBodyWrapped(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("plain text result"))
	}))
	defer srv.Close()

	c := NewClient(hclog.NewNullLogger())
	outcome, err := c.Execute(context.Background(), srv.URL, userDefinition(), userDescriptor(), map[string]any{
		"user_id": "u-1",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":"plain text result"}`, string(outcome.Body))
}

func TestClient_Execute_NonTwoHundredIsOutcome(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"no such user"}`))
	}))
	defer srv.Close()

	c := NewClient(hclog.NewNullLogger())
	outcome, err := c.Execute(context.Background(), srv.URL, userDefinition(), userDescriptor(), map[string]any{
		"user_id": "ghost",
	})

	// A non-2xx is data for the agent loop, not a local failure.
	require.NoError(t, err)
	assert.False(t, outcome.OK())
	assert.Equal(t, http.StatusNotFound, outcome.Status)
	assert.JSONEq(t, `{"detail":"no such user"}`, string(outcome.Body))
}

func TestClient_Execute_NetworkFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // Closed before use.

	c := NewClient(hclog.NewNullLogger())
	_, err := c.Execute(context.Background(), srv.URL, userDefinition(), userDescriptor(), map[string]any{
		"user_id": "u-1",
	})
	require.ErrorIs(t, err, errors.ErrUpstreamUnavailable)
}

func TestClient_CallTool(t *testing.T) {
	t.Parallel()

	newRegistryWithServer := func(t *testing.T, baseURL string) (*registry.Registry, *registry.Toolset) {
		t.Helper()

		r := registry.NewRegistry()
		require.NoError(t, r.Register(registry.Server{
			ID:      "s1",
			Name:    "users-api",
			BaseURL: baseURL,
			Active:  true,
			Tools: []endpoint.CompiledTool{
				{Definition: userDefinition(), Descriptor: userDescriptor()},
			},
		}))
		ts, err := r.Compose("s1")
		require.NoError(t, err)
		return r, ts
	}

	t.Run("dispatches via owning server", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))
		defer srv.Close()

		r, ts := newRegistryWithServer(t, srv.URL)
		c := NewClient(hclog.NewNullLogger())

		outcome, err := c.CallTool(context.Background(), r, ts, "get_users_user_id", map[string]any{"user_id": "u-1"})
		require.NoError(t, err)
		assert.True(t, outcome.OK())
	})

	t.Run("unknown tool", func(t *testing.T) {
		t.Parallel()

		r, ts := newRegistryWithServer(t, "http://unused.test")
		c := NewClient(hclog.NewNullLogger())

		_, err := c.CallTool(context.Background(), r, ts, "nope", nil)
		require.ErrorIs(t, err, errors.ErrToolNotFound)
	})

	t.Run("deactivated between composition and dispatch", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			calls.Add(1)
		}))
		defer srv.Close()

		r, ts := newRegistryWithServer(t, srv.URL)
		require.NoError(t, r.SetActive("s1", false))

		c := NewClient(hclog.NewNullLogger())
		_, err := c.CallTool(context.Background(), r, ts, "get_users_user_id", map[string]any{"user_id": "u-1"})

		require.ErrorIs(t, err, errors.ErrServerInactive)
		assert.Equal(t, int32(0), calls.Load())
	})

	t.Run("base URL update redirects subsequent calls", func(t *testing.T) {
		t.Parallel()

		var oldCalls, newCalls atomic.Int32
		oldSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			oldCalls.Add(1)
			_, _ = w.Write([]byte(`{"from":"old"}`))
		}))
		defer oldSrv.Close()
		newSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			newCalls.Add(1)
			_, _ = w.Write([]byte(`{"from":"new"}`))
		}))
		defer newSrv.Close()

		r, ts := newRegistryWithServer(t, oldSrv.URL)
		c := NewClient(hclog.NewNullLogger())

		first, err := c.CallTool(context.Background(), r, ts, "get_users_user_id", map[string]any{"user_id": "u-1"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"from":"old"}`, string(first.Body))

		require.NoError(t, r.UpdateBaseURL("s1", newSrv.URL))

		second, err := c.CallTool(context.Background(), r, ts, "get_users_user_id", map[string]any{"user_id": "u-1"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"from":"new"}`, string(second.Body))

		// The already-returned first result is untouched by the URL change.
		assert.JSONEq(t, `{"from":"old"}`, string(first.Body))
		assert.Equal(t, int32(1), oldCalls.Load())
		assert.Equal(t, int32(1), newCalls.Load())
	})
}
