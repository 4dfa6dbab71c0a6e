package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publora/publora/pkg/core"
)

func twitterRequest() *core.PublishRequest {
	return &core.PublishRequest{
		PostID:   "post-1",
		Platform: core.PlatformTwitter,
		Content:  "first tweet",
		Owner:    "user-7",
	}
}

type tweetCall struct {
	text    string
	replyTo string
}

// tweetServer records every created tweet and assigns incrementing ids.
func tweetServer(t *testing.T) (*httptest.Server, *[]tweetCall) {
	t.Helper()
	var calls []tweetCall

	mux := http.NewServeMux()
	mux.HandleFunc("POST /2/tweets", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text  string `json:"text"`
			Reply struct {
				InReplyToTweetID string `json:"in_reply_to_tweet_id"`
			} `json:"reply"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		calls = append(calls, tweetCall{text: body.Text, replyTo: body.Reply.InReplyToTweetID})
		fmt.Fprintf(w, `{"data":{"id":"tw-%d"}}`, len(calls))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &calls
}

func TestTwitter_SingleTweet(t *testing.T) {
	server, calls := tweetServer(t)

	adapter := NewTwitter(&fakeCreds{token: "tw-token"}, WithBaseURL(server.URL))
	result := adapter.Publish(context.Background(), twitterRequest())

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, "tw-1", result.ExternalPostID)
	assert.Equal(t, "https://twitter.com/i/web/status/tw-1", result.URL)
	require.Len(t, *calls, 1)
	assert.Empty(t, (*calls)[0].replyTo)
}

func TestTwitter_ThreadSegmentsChainSequentially(t *testing.T) {
	server, calls := tweetServer(t)

	req := twitterRequest()
	req.Thread = []string{"second tweet", "third tweet"}

	adapter := NewTwitter(&fakeCreds{token: "tw-token"}, WithBaseURL(server.URL))
	result := adapter.Publish(context.Background(), req)

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, "tw-1", result.ExternalPostID, "result points at the thread head")

	require.Len(t, *calls, 3)
	assert.Equal(t, "", (*calls)[0].replyTo)
	assert.Equal(t, "tw-1", (*calls)[1].replyTo)
	assert.Equal(t, "tw-2", (*calls)[2].replyTo)
}

func TestTwitter_ThreadBreakReportsSegment(t *testing.T) {
	var count atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /2/tweets", func(w http.ResponseWriter, r *http.Request) {
		if count.Add(1) == 2 {
			http.Error(w, "upstream down", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"data":{"id":"tw-%d"}}`, count.Load())
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	req := twitterRequest()
	req.Thread = []string{"second tweet"}

	adapter := NewTwitter(&fakeCreds{token: "tw-token"}, WithBaseURL(server.URL))
	result := adapter.Publish(context.Background(), req)

	assert.False(t, result.Success)
	assert.Equal(t, core.KindPlatformError, result.ErrorKind)
	assert.Contains(t, result.Error, "segment 2 of 2")
}

func TestTwitter_AnySegmentOverLimitFailsBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	req := twitterRequest()
	req.Thread = []string{strings.Repeat("x", 281)}

	adapter := NewTwitter(&fakeCreds{token: "tw-token"}, WithBaseURL(server.URL))
	result := adapter.Publish(context.Background(), req)

	assert.False(t, result.Success)
	assert.Equal(t, core.KindContentTooLong, result.ErrorKind)
	assert.Equal(t, int32(0), calls.Load())
}

func TestTwitter_ChunkedMediaUpload(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte(strings.Repeat("j", 100)))
	}))
	defer media.Close()

	var commands []string
	var mediaIDs []string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /1.1/media/upload.json", func(w http.ResponseWriter, r *http.Request) {
		contentType := r.Header.Get("Content-Type")
		var command string
		if strings.HasPrefix(contentType, "multipart/form-data") {
			require.NoError(t, r.ParseMultipartForm(1<<22))
			command = r.FormValue("command")
		} else {
			require.NoError(t, r.ParseForm())
			command = r.FormValue("command")
		}
		commands = append(commands, command)
		if command != "INIT" {
			mediaIDs = append(mediaIDs, r.FormValue("media_id"))
		}
		w.Write([]byte(`{"media_id_string":"media-55"}`))
	})
	mux.HandleFunc("POST /2/tweets", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Media struct {
				MediaIDs []string `json:"media_ids"`
			} `json:"media"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"media-55"}, body.Media.MediaIDs)
		w.Write([]byte(`{"data":{"id":"tw-1"}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	req := twitterRequest()
	req.ImageURLs = []string{media.URL + "/pic.jpg"}

	adapter := NewTwitter(&fakeCreds{token: "tw-token"},
		WithBaseURL(server.URL),
		WithUploadBaseURL(server.URL+"/1.1/media/upload.json"))
	result := adapter.Publish(context.Background(), req)

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, []string{"INIT", "APPEND", "FINALIZE"}, commands)
	assert.Equal(t, []string{"media-55", "media-55"}, mediaIDs)
}
