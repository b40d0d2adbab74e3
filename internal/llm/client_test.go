package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"choices": [{"message": {"role": "assistant", "content": "{\"queries\":[]}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 42, "completion_tokens": 7}
		}`)
	}))
	defer srv.Close()

	client := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "openai/gpt-oss-120b",
	})

	reply, err := client.Complete(context.Background(), "You are a data analyst.", []Message{
		{Role: "user", Content: "Plan the analysis."},
		{Role: "assistant", Content: "Here is the plan."},
		{Role: "user", Content: "Refine it."},
	}, 4096)
	require.NoError(t, err)
	assert.Equal(t, `{"queries":[]}`, reply)

	assert.Equal(t, "openai/gpt-oss-120b", gotBody["model"])
	assert.EqualValues(t, 4096, gotBody["max_tokens"])

	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	roles := make([]string, len(msgs))
	for i, m := range msgs {
		roles[i] = m.(map[string]any)["role"].(string)
	}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices": []}`)
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "m"})
	_, err := client.Complete(context.Background(), "system", nil, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestComplete_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": {"message": "invalid model"}}`)
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "m"})
	_, err := client.Complete(context.Background(), "system", nil, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completion request failed")
}
