package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBatch(t *testing.T) {
	messages := FormatBatch("Daily relearn images", []string{
		"https://drive.example.com/a",
		"https://drive.example.com/b",
	})

	require.Len(t, messages, 3)
	assert.Contains(t, messages[0], "Daily relearn images")
	assert.Contains(t, messages[0], "(2 images)")
	assert.Equal(t, "<https://drive.example.com/a>", messages[1])
	assert.Equal(t, "<https://drive.example.com/b>", messages[2])
}

func TestFormatBatch_NoLinks(t *testing.T) {
	messages := FormatBatch("Daily relearn images", nil)

	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "(0 images)")
}

type recordedMessage struct {
	Text        string `json:"text"`
	UnfurlLinks bool   `json:"unfurl_links"`
}

func TestPublishLinks_OneCallPerMessage(t *testing.T) {
	var mu sync.Mutex
	var received []recordedMessage

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg recordedMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	hook := &Webhook{url: server.URL, client: server.Client()}

	sent, err := hook.PublishLinks(context.Background(), "Daily relearn images", []string{
		"https://drive.example.com/a",
		"https://drive.example.com/b",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sent)

	require.Len(t, received, 3)
	assert.Contains(t, received[0].Text, "(2 images)")
	for _, msg := range received {
		assert.True(t, msg.UnfurlLinks, "unfurl_links must be enabled for previews")
	}
	assert.Equal(t, "<https://drive.example.com/a>", received[1].Text)
}

func TestPublishLinks_PartialDelivery(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	hook := &Webhook{url: server.URL, client: server.Client()}

	sent, err := hook.PublishLinks(context.Background(), "header", []string{"https://a", "https://b"})
	require.NoError(t, err, "partial delivery is a success list, not a failure")
	assert.Equal(t, 2, sent)
}

func TestPublishLinks_TotalFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	hook := &Webhook{url: server.URL, client: server.Client()}

	sent, err := hook.PublishLinks(context.Background(), "header", []string{"https://a"})
	require.Error(t, err)
	assert.Zero(t, sent)
}

func TestPublishLinks_NoLinksSendsNothing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("no webhook call expected")
	}))
	defer server.Close()

	hook := &Webhook{url: server.URL, client: server.Client()}

	sent, err := hook.PublishLinks(context.Background(), "header", nil)
	require.NoError(t, err)
	assert.Zero(t, sent)
}
