package mcp

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/greptile-mcp/pkg/types"
)

func TestSessionStore(t *testing.T) {
	t.Run("round trips a conversation in order", func(t *testing.T) {
		store := NewSessionStore(4)

		store.Append("sess-1",
			types.Message{Role: types.RoleUser, Content: "where is auth?"},
			types.Message{Role: types.RoleAssistant, Content: "in the middleware"},
		)
		store.Append("sess-1",
			types.Message{Role: types.RoleUser, Content: "show me its tests"},
		)

		history := store.History("sess-1")
		require.Len(t, history, 3)
		assert.Equal(t, "where is auth?", history[0].Content)
		assert.Equal(t, types.RoleAssistant, history[1].Role)
		assert.Equal(t, "show me its tests", history[2].Content)
	})

	t.Run("unknown session has no history", func(t *testing.T) {
		store := NewSessionStore(4)
		assert.Empty(t, store.History("never-seen"))
	})

	t.Run("empty ids and empty appends are ignored", func(t *testing.T) {
		store := NewSessionStore(4)

		store.Append("", types.Message{Role: types.RoleUser, Content: "dropped"})
		store.Append("sess-1")

		assert.Equal(t, 0, store.Len())
	})

	t.Run("history is a copy", func(t *testing.T) {
		store := NewSessionStore(4)
		store.Append("sess-1", types.Message{Role: types.RoleUser, Content: "original"})

		history := store.History("sess-1")
		history[0].Content = "mutated"
		_ = append(history, types.Message{Role: types.RoleUser, Content: "extra"})

		fresh := store.History("sess-1")
		require.Len(t, fresh, 1)
		assert.Equal(t, "original", fresh[0].Content)
	})

	t.Run("evicts the least recently used session", func(t *testing.T) {
		store := NewSessionStore(2)

		store.Append("sess-1", types.Message{Role: types.RoleUser, Content: "one"})
		store.Append("sess-2", types.Message{Role: types.RoleUser, Content: "two"})
		store.Append("sess-3", types.Message{Role: types.RoleUser, Content: "three"})

		assert.Equal(t, 2, store.Len())
		assert.Empty(t, store.History("sess-1"))
		assert.Len(t, store.History("sess-3"), 1)
	})

	t.Run("reading a session refreshes its recency", func(t *testing.T) {
		store := NewSessionStore(2)

		store.Append("sess-1", types.Message{Role: types.RoleUser, Content: "one"})
		store.Append("sess-2", types.Message{Role: types.RoleUser, Content: "two"})
		_ = store.History("sess-1")
		store.Append("sess-3", types.Message{Role: types.RoleUser, Content: "three"})

		assert.Len(t, store.History("sess-1"), 1, "the recently read session should survive")
		assert.Empty(t, store.History("sess-2"))
	})

	t.Run("non-positive limits fall back to the default", func(t *testing.T) {
		for _, limit := range []int{0, -1} {
			store := NewSessionStore(limit)
			store.Append("sess-1", types.Message{Role: types.RoleUser, Content: "hello"})
			assert.Len(t, store.History("sess-1"), 1)
		}
	})

	t.Run("concurrent appends do not drop messages", func(t *testing.T) {
		store := NewSessionStore(8)

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					store.Append("shared", types.Message{
						Role:    types.RoleUser,
						Content: fmt.Sprintf("g%d-%d", g, i),
					})
				}
			}(g)
		}
		wg.Wait()

		assert.Len(t, store.History("shared"), 200)
	})
}

func TestSessionStoreNewID(t *testing.T) {
	store := NewSessionStore(4)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := store.NewID()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "ids should not repeat")
		seen[id] = true
	}
}
