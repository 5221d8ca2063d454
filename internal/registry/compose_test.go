package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiforge-ai/apiforge/internal/errors"
	"github.com/apiforge-ai/apiforge/internal/tools"
)

func TestRegistry_Compose(t *testing.T) {
	t.Parallel()

	t.Run("merges servers in order", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		require.NoError(t, r.Register(testServer("s1", "get_user", "list_users")))
		require.NoError(t, r.Register(testServer("s2", "create_order")))

		ts, err := r.Compose("s1", "s2")
		require.NoError(t, err)
		assert.Equal(t, 3, ts.Len())
		assert.Equal(t, []string{"get_user", "list_users", "create_order"}, ts.Names())

		b, ok := ts.Get("create_order")
		require.True(t, ok)
		assert.Equal(t, "s2", b.ServerID)
	})

	t.Run("renames later collision preserving count", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		require.NoError(t, r.Register(testServer("aaaabbbbcccc", "get_user")))
		require.NoError(t, r.Register(testServer("ddddeeeeffff", "get_user", "list_users")))

		ts, err := r.Compose("aaaabbbbcccc", "ddddeeeeffff")
		require.NoError(t, err)

		// Count equals the sum of per-server counts even with a collision.
		assert.Equal(t, 3, ts.Len())
		assert.Equal(t, []string{"get_user", "get_user_ddddeeee", "list_users"}, ts.Names())

		// First-seen keeps its name and owner.
		first, ok := ts.Get("get_user")
		require.True(t, ok)
		assert.Equal(t, "aaaabbbbcccc", first.ServerID)

		// Renamed binding belongs to the later server; its definition carries
		// the composed name so the provider and dispatcher agree.
		renamed, ok := ts.Get("get_user_ddddeeee")
		require.True(t, ok)
		assert.Equal(t, "ddddeeeeffff", renamed.ServerID)
		assert.Equal(t, "get_user_ddddeeee", renamed.Definition.Name)
	})

	t.Run("short server id used whole", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		require.NoError(t, r.Register(testServer("s1", "get_user")))
		require.NoError(t, r.Register(testServer("s2", "get_user")))

		ts, err := r.Compose("s1", "s2")
		require.NoError(t, err)
		assert.Equal(t, []string{"get_user", "get_user_s2"}, ts.Names())
	})

	t.Run("same server composed twice", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		require.NoError(t, r.Register(testServer("s1", "get_user")))

		ts, err := r.Compose("s1", "s1")
		require.NoError(t, err)
		assert.Equal(t, 2, ts.Len())
		assert.Equal(t, []string{"get_user", "get_user_s1"}, ts.Names())
	})

	t.Run("unknown server fails", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		_, err := r.Compose("missing")
		require.ErrorIs(t, err, errors.ErrServerNotFound)
	})

	t.Run("inactive server fails at composition", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		require.NoError(t, r.Register(testServer("s1", "get_user")))
		require.NoError(t, r.SetActive("s1", false))

		_, err := r.Compose("s1")
		require.ErrorIs(t, err, errors.ErrServerInactive)
	})

	t.Run("empty composition is valid", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		ts, err := r.Compose()
		require.NoError(t, err)
		assert.Equal(t, 0, ts.Len())
		assert.Empty(t, ts.Definitions())
	})

	t.Run("toolset unaffected by later registry mutation", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		require.NoError(t, r.Register(testServer("s1", "get_user")))

		ts, err := r.Compose("s1")
		require.NoError(t, err)

		// Deactivation after composition does not change the composed set;
		// it is dispatch that re-validates activity.
		require.NoError(t, r.SetActive("s1", false))
		assert.Equal(t, 1, ts.Len())
	})
}

func TestComposeDefinitions(t *testing.T) {
	t.Parallel()

	defs := []tools.Definition{
		{Name: "alpha", Description: "a", InputSchema: tools.NewSchema()},
		{Name: "beta", Description: "b", InputSchema: tools.NewSchema()},
		{Name: "alpha", Description: "duplicate ignored", InputSchema: tools.NewSchema()},
	}

	ts := ComposeDefinitions(defs)
	assert.Equal(t, 2, ts.Len())
	assert.Equal(t, []string{"alpha", "beta"}, ts.Names())

	b, ok := ts.Get("alpha")
	require.True(t, ok)
	assert.Empty(t, b.ServerID)
	assert.Equal(t, "a", b.Definition.Description)
}
