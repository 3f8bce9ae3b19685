package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"NewsDigest/internal/config"
)

func TestPublishDigestPostsMarkdownForm(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		texts []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/bottoken-1/sendMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "42", r.PostForm.Get("chat_id"))
		require.Equal(t, "Markdown", r.PostForm.Get("parse_mode"))

		mu.Lock()
		texts = append(texts, r.PostForm.Get("text"))
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "token-1", ChatID: "42"}, server.URL+"/")
	require.NoError(t, n.PublishDigest(context.Background(), "*Nye nyheder (1)*\n\nTitel"))
	require.Equal(t, []string{"*Nye nyheder (1)*\n\nTitel"}, texts)
}

func TestPublishDigestReportsAPIErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: can't parse entities"}`))
	}))
	defer server.Close()

	n := NewNotifier(config.TelegramConfig{BotToken: "t", ChatID: "1"}, server.URL)
	err := n.PublishDigest(context.Background(), "x")
	require.ErrorContains(t, err, "can't parse entities")

	err = NewNotifier(config.TelegramConfig{}, server.URL).PublishDigest(context.Background(), "x")
	require.ErrorContains(t, err, "misconfigured")
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	require.Nil(t, splitMessage("", 10))
	require.Equal(t, []string{"abc\n\ndef"}, splitMessage("abc\n\ndef", 10))
	require.Equal(t, []string{"abcd", "efgh"}, splitMessage("abcd\n\nefgh", 6))
	require.Equal(t, []string{"abcdef", "ghij", "kl"}, splitMessage("abcdefghij\n\nkl", 6))

	require.Equal(t, []string{"*ab*", "_cd_"}, splitMessage("*ab*\n_cd_", 6))
	require.Equal(t, []string{"*ab*", "_cd_", "ef"}, splitMessage("*ab*\n_cd_\n\nef", 6))

	blocks := make([]string, 300)
	for i := range blocks {
		blocks[i] = strings.Repeat("æ", 30)
	}
	for _, part := range splitMessage(strings.Join(blocks, "\n\n"), maxMessageRunes) {
		require.LessOrEqual(t, len([]rune(part)), maxMessageRunes)
	}
}
