package platform

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/publora/publora/pkg/core"
)

const (
	defaultTwitterBaseURL   = "https://api.twitter.com"
	defaultTwitterUploadURL = "https://upload.twitter.com/1.1/media/upload.json"

	// uploadChunkSize is the APPEND segment size for chunked media upload.
	uploadChunkSize = 1 << 20
)

// Twitter publishes tweets and threads through the v2 API, with media pushed
// through the v1.1 chunked upload flow (INIT, APPEND, FINALIZE).
type Twitter struct {
	settings
	creds core.CredentialStore
}

// NewTwitter creates the Twitter adapter.
func NewTwitter(creds core.CredentialStore, opts ...Option) *Twitter {
	s := newSettings(defaultTwitterBaseURL, defaultTwitterUploadURL, TwitterCharLimit)
	for _, opt := range opts {
		opt(&s)
	}
	return &Twitter{settings: s, creds: creds}
}

func (tw *Twitter) Platform() core.Platform { return core.PlatformTwitter }

// Publish posts the content, then each thread segment strictly in order.
// Every segment replies to the tweet before it, so segments can never post
// in parallel. A segment failure reports how far the thread got.
func (tw *Twitter) Publish(ctx context.Context, req *core.PublishRequest) *core.PublishResult {
	segments := append([]string{req.Content}, req.Thread...)
	for _, segment := range segments {
		if perr := checkLength(segment, tw.charLimit); perr != nil {
			return core.Failed(core.PlatformTwitter, perr)
		}
	}

	token, err := tw.creds.GetValidAccessToken(ctx, req.Owner, core.PlatformTwitter)
	if err != nil {
		return core.Failed(core.PlatformTwitter, core.WrapPublishError(
			core.KindAuthError, "resolve access token", err))
	}

	var mediaIDs []string
	for _, imageURL := range req.ImageURLs {
		mediaID, perr := tw.uploadMedia(ctx, imageURL, token)
		if perr != nil {
			return core.Failed(core.PlatformTwitter, perr)
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	var firstID, prevID string
	for i, segment := range segments {
		var ids []string
		if i == 0 {
			ids = mediaIDs // media rides on the head tweet only
		}
		tweetID, perr := tw.createTweet(ctx, segment, ids, prevID, token)
		if perr != nil {
			if i > 0 {
				perr.Message = fmt.Sprintf("thread broke at segment %d of %d: %s",
					i+1, len(segments), perr.Message)
			}
			return core.Failed(core.PlatformTwitter, perr)
		}
		if i == 0 {
			firstID = tweetID
		}
		prevID = tweetID
	}

	tw.logger.Info("published to twitter",
		"post_id", req.PostID, "tweet_id", firstID, "segments", len(segments))
	return core.Succeeded(core.PlatformTwitter, firstID,
		fmt.Sprintf("https://twitter.com/i/web/status/%s", firstID))
}

func (tw *Twitter) createTweet(ctx context.Context, text string, mediaIDs []string, replyTo, token string) (string, *core.PublishError) {
	payload := map[string]any{"text": text}
	if len(mediaIDs) > 0 {
		payload["media"] = map[string]any{"media_ids": mediaIDs}
	}
	if replyTo != "" {
		payload["reply"] = map[string]string{"in_reply_to_tweet_id": replyTo}
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	if perr := postJSON(ctx, tw.client, tw.baseURL+"/2/tweets", headers, payload, &out); perr != nil {
		return "", perr
	}
	if out.Data.ID == "" {
		return "", core.NewPublishError(core.KindPlatformError, "tweet create returned no id")
	}
	return out.Data.ID, nil
}

// uploadMedia runs the chunked upload: INIT declares the media, APPEND
// pushes the bytes in segments, FINALIZE seals it.
func (tw *Twitter) uploadMedia(ctx context.Context, imageURL, token string) (string, *core.PublishError) {
	data, contentType, perr := fetchImage(ctx, tw.client, imageURL)
	if perr != nil {
		return "", perr
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", core.NewPublishError(core.KindInvalidMedia,
			fmt.Sprintf("attachment is %s, not an image", contentType))
	}

	mediaID, perr := tw.uploadInit(ctx, len(data), contentType, token)
	if perr != nil {
		return "", perr
	}

	for segment := 0; segment*uploadChunkSize < len(data); segment++ {
		start := segment * uploadChunkSize
		end := min(start+uploadChunkSize, len(data))
		if perr := tw.uploadAppend(ctx, mediaID, segment, data[start:end], token); perr != nil {
			return "", perr
		}
	}

	return mediaID, tw.uploadFinalize(ctx, mediaID, token)
}

func (tw *Twitter) uploadInit(ctx context.Context, totalBytes int, contentType, token string) (string, *core.PublishError) {
	form := url.Values{
		"command":     {"INIT"},
		"total_bytes": {strconv.Itoa(totalBytes)},
		"media_type":  {contentType},
	}

	status, body, perr := tw.postForm(ctx, form, token)
	if perr != nil {
		return "", perr
	}
	if status < 200 || status > 299 {
		return "", statusError(kindForStatus(status), status, body)
	}

	var out struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := unmarshalBody(body, &out); err != nil {
		return "", err
	}
	if out.MediaIDString == "" {
		return "", core.NewPublishError(core.KindPlatformError, "media INIT returned no id")
	}
	return out.MediaIDString, nil
}

func (tw *Twitter) uploadAppend(ctx context.Context, mediaID string, segment int, chunk []byte, token string) *core.PublishError {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("command", "APPEND")
	_ = form.WriteField("media_id", mediaID)
	_ = form.WriteField("segment_index", strconv.Itoa(segment))
	part, err := form.CreateFormFile("media", "chunk")
	if err == nil {
		_, err = part.Write(chunk)
	}
	if err == nil {
		err = form.Close()
	}
	if err != nil {
		return core.WrapPublishError(core.KindUnknownError, "build upload chunk", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tw.uploadURL, &buf)
	if err != nil {
		return core.WrapPublishError(core.KindUnknownError, "build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	status, body, perr := send(tw.client, httpReq)
	if perr != nil {
		return perr
	}
	if status < 200 || status > 299 {
		return statusError(kindForStatus(status), status, body)
	}
	return nil
}

func (tw *Twitter) uploadFinalize(ctx context.Context, mediaID, token string) *core.PublishError {
	form := url.Values{
		"command":  {"FINALIZE"},
		"media_id": {mediaID},
	}
	status, body, perr := tw.postForm(ctx, form, token)
	if perr != nil {
		return perr
	}
	if status < 200 || status > 299 {
		return statusError(kindForStatus(status), status, body)
	}
	return nil
}

func (tw *Twitter) postForm(ctx context.Context, form url.Values, token string) (int, []byte, *core.PublishError) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tw.uploadURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, core.WrapPublishError(core.KindUnknownError, "build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return send(tw.client, httpReq)
}
