package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publora/publora/pkg/core"
)

func instagramRequest() *core.PublishRequest {
	return &core.PublishRequest{
		PostID:     "post-1",
		Platform:   core.PlatformInstagram,
		Content:    "sunset",
		Owner:      "user-7",
		Credential: "17841400000000000",
		ImageURLs:  []string{"https://cdn.example.com/sunset.jpg"},
	}
}

// instagramServer simulates the Graph API container flow. statuses is the
// sequence of status_code values the container reports, one per poll.
func instagramServer(t *testing.T, statuses []string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /17841400000000000/media", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"container-1"}`))
	})
	mux.HandleFunc("GET /container-1", func(w http.ResponseWriter, r *http.Request) {
		n := int(polls.Add(1))
		status := statuses[len(statuses)-1]
		if n <= len(statuses) {
			status = statuses[n-1]
		}
		fmt.Fprintf(w, `{"status_code":%q}`, status)
	})
	mux.HandleFunc("POST /17841400000000000/media_publish", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"media-9"}`))
	})
	mux.HandleFunc("GET /media-9", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"permalink":"https://www.instagram.com/p/abc/"}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &polls
}

func newTestInstagram(serverURL string) *Instagram {
	return NewInstagram(&fakeCreds{token: "ig-token"},
		WithBaseURL(serverURL),
		WithPollInterval(time.Millisecond))
}

func TestInstagram_ContainerFlow(t *testing.T) {
	server, polls := instagramServer(t, []string{"IN_PROGRESS", "FINISHED"})

	result := newTestInstagram(server.URL).Publish(context.Background(), instagramRequest())

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, "media-9", result.ExternalPostID)
	assert.Equal(t, "https://www.instagram.com/p/abc/", result.URL)
	assert.Equal(t, int32(2), polls.Load())
}

func TestInstagram_PollExhaustionIsTerminal(t *testing.T) {
	server, polls := instagramServer(t, []string{"IN_PROGRESS"})

	done := make(chan *core.PublishResult, 1)
	go func() {
		done <- newTestInstagram(server.URL).Publish(context.Background(), instagramRequest())
	}()

	select {
	case result := <-done:
		assert.False(t, result.Success)
		assert.Equal(t, core.KindTimeoutError, result.ErrorKind)
		assert.Equal(t, int32(5), polls.Load(), "exactly the bounded poll count")
	case <-time.After(5 * time.Second):
		t.Fatal("adapter hung instead of giving up after bounded polls")
	}
}

func TestInstagram_ContainerErrorStatus(t *testing.T) {
	for _, status := range []string{"ERROR", "EXPIRED"} {
		server, _ := instagramServer(t, []string{status})

		result := newTestInstagram(server.URL).Publish(context.Background(), instagramRequest())
		assert.False(t, result.Success)
		assert.Equal(t, core.KindContainerError, result.ErrorKind, "status %s", status)
	}
}

func TestInstagram_RequiresJPEG(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	req := instagramRequest()
	req.ImageURLs = []string{"https://cdn.example.com/pic.png"}

	result := newTestInstagram(server.URL).Publish(context.Background(), req)
	assert.False(t, result.Success)
	assert.Equal(t, core.KindInvalidMedia, result.ErrorKind)
	assert.Equal(t, int32(0), calls.Load())
}

func TestInstagram_RequiresImage(t *testing.T) {
	req := instagramRequest()
	req.ImageURLs = nil

	result := newTestInstagram("http://unused.invalid").Publish(context.Background(), req)
	assert.False(t, result.Success)
	assert.Equal(t, core.KindInvalidMedia, result.ErrorKind)
}

func TestInstagram_CaptionTooLong(t *testing.T) {
	req := instagramRequest()
	req.Content = strings.Repeat("x", 2201)

	result := newTestInstagram("http://unused.invalid").Publish(context.Background(), req)
	assert.False(t, result.Success)
	assert.Equal(t, core.KindContentTooLong, result.ErrorKind)
}
