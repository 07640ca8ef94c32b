package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advisql/advisql/internal/analyzer"
	"github.com/advisql/advisql/internal/optimizer"
)

func chatReply(t *testing.T, content string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}
}

func TestSuggest(t *testing.T) {
	content := `[{"type":"index","description":"Index the status column.","impact":"medium","implementation_steps":["CREATE INDEX idx_orders_status ON orders(status);"]}]`
	srv := httptest.NewServer(chatReply(t, content))
	defer srv.Close()

	c := NewChatClient(srv.URL, "test-model", "test-key")
	got, err := c.Suggest(context.Background(), Request{
		Query:    "SELECT status FROM orders",
		Analysis: &analyzer.Analysis{TablesUsed: []string{"orders"}},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, optimizer.KindIndex, got[0].Kind)
	assert.Equal(t, optimizer.ImpactMedium, got[0].Impact)
}

func TestSuggestStripsCodeFences(t *testing.T) {
	content := "```json\n[{\"type\":\"view\",\"description\":\"x\",\"impact\":\"low\",\"implementation_steps\":[]}]\n```"
	srv := httptest.NewServer(chatReply(t, content))
	defer srv.Close()

	c := NewChatClient(srv.URL, "test-model", "test-key")
	got, err := c.Suggest(context.Background(), Request{Query: "SELECT 1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, optimizer.KindView, got[0].Kind)
}

func TestSuggestErrors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c := NewChatClient(srv.URL, "test-model", "")
		_, err := c.Suggest(context.Background(), Request{Query: "SELECT 1"})
		assert.ErrorContains(t, err, "status 503")
	})

	t.Run("malformed content", func(t *testing.T) {
		srv := httptest.NewServer(chatReply(t, "sure! here are my thoughts..."))
		defer srv.Close()

		c := NewChatClient(srv.URL, "test-model", "test-key")
		_, err := c.Suggest(context.Background(), Request{Query: "SELECT 1"})
		assert.ErrorContains(t, err, "malformed suggestions")
	})
}
