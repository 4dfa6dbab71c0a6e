package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/publora/publora/pkg/core"
)

const defaultInstagramBaseURL = "https://graph.facebook.com/v19.0"

// Instagram publishes through the Graph API container flow: create a media
// container, poll until it reaches a terminal status, then publish it. The
// business account ID travels in the request's Credential field.
type Instagram struct {
	settings
	creds core.CredentialStore
}

// NewInstagram creates the Instagram Graph API adapter.
func NewInstagram(creds core.CredentialStore, opts ...Option) *Instagram {
	s := newSettings(defaultInstagramBaseURL, "", InstagramCharLimit)
	for _, opt := range opts {
		opt(&s)
	}
	return &Instagram{settings: s, creds: creds}
}

func (ig *Instagram) Platform() core.Platform { return core.PlatformInstagram }

// Publish runs the three-step container flow. The poll is bounded: running
// out of attempts returns TIMEOUT_ERROR, never an unbounded wait.
func (ig *Instagram) Publish(ctx context.Context, req *core.PublishRequest) *core.PublishResult {
	if perr := checkLength(req.Content, ig.charLimit); perr != nil {
		return core.Failed(core.PlatformInstagram, perr)
	}
	if perr := ig.checkMedia(req.ImageURLs); perr != nil {
		return core.Failed(core.PlatformInstagram, perr)
	}
	if req.Credential == "" {
		return core.Failed(core.PlatformInstagram, core.NewPublishError(
			core.KindAuthError, "missing instagram business account id"))
	}

	token, err := ig.creds.GetValidAccessToken(ctx, req.Owner, core.PlatformInstagram)
	if err != nil {
		return core.Failed(core.PlatformInstagram, core.WrapPublishError(
			core.KindAuthError, "resolve access token", err))
	}

	containerID, perr := ig.createContainer(ctx, req, token)
	if perr != nil {
		return core.Failed(core.PlatformInstagram, perr)
	}

	if perr := ig.awaitContainer(ctx, containerID, token); perr != nil {
		return core.Failed(core.PlatformInstagram, perr)
	}

	mediaID, perr := ig.publishContainer(ctx, req.Credential, containerID, token)
	if perr != nil {
		return core.Failed(core.PlatformInstagram, perr)
	}

	permalink := ig.permalink(ctx, mediaID, token)
	ig.logger.Info("published to instagram", "post_id", req.PostID, "media_id", mediaID)
	return core.Succeeded(core.PlatformInstagram, mediaID, permalink)
}

// checkMedia enforces the Graph API's constraints locally: exactly JPEG,
// already hosted at a public URL. The adapter never hosts media itself.
func (ig *Instagram) checkMedia(imageURLs []string) *core.PublishError {
	if len(imageURLs) == 0 {
		return core.NewPublishError(core.KindInvalidMedia, "instagram requires an image")
	}
	for _, raw := range imageURLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return core.NewPublishError(core.KindInvalidMedia,
				fmt.Sprintf("image must be a public url: %s", raw))
		}
		ext := strings.ToLower(u.Path)
		if !strings.HasSuffix(ext, ".jpg") && !strings.HasSuffix(ext, ".jpeg") {
			return core.NewPublishError(core.KindInvalidMedia,
				fmt.Sprintf("instagram only accepts JPEG images: %s", raw))
		}
	}
	return nil
}

func (ig *Instagram) createContainer(ctx context.Context, req *core.PublishRequest, token string) (string, *core.PublishError) {
	endpoint := fmt.Sprintf("%s/%s/media", ig.baseURL, req.Credential)
	payload := map[string]string{
		"image_url":    req.ImageURLs[0],
		"caption":      req.Content,
		"access_token": token,
	}

	var out struct {
		ID string `json:"id"`
	}
	if perr := postJSON(ctx, ig.client, endpoint, nil, payload, &out); perr != nil {
		return "", perr
	}
	if out.ID == "" {
		return "", core.NewPublishError(core.KindContainerError, "container create returned no id")
	}
	return out.ID, nil
}

// awaitContainer polls the container status at pollInterval spacing for at
// most pollAttempts polls.
func (ig *Instagram) awaitContainer(ctx context.Context, containerID, token string) *core.PublishError {
	endpoint := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s",
		ig.baseURL, containerID, url.QueryEscape(token))

	for attempt := 1; attempt <= ig.pollAttempts; attempt++ {
		var out struct {
			StatusCode string `json:"status_code"`
		}
		if perr := getJSON(ctx, ig.client, endpoint, nil, &out); perr != nil {
			return perr
		}

		switch out.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return core.NewPublishError(core.KindContainerError,
				fmt.Sprintf("container %s entered status %s", containerID, out.StatusCode))
		}

		ig.logger.Debug("container not ready",
			"container_id", containerID, "status", out.StatusCode, "attempt", attempt)
		if attempt == ig.pollAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return core.WrapPublishError(core.KindTimeoutError, "container poll cancelled", ctx.Err())
		case <-time.After(ig.pollInterval):
		}
	}

	return core.NewPublishError(core.KindTimeoutError,
		fmt.Sprintf("container %s not ready after %d polls", containerID, ig.pollAttempts))
}

func (ig *Instagram) publishContainer(ctx context.Context, accountID, containerID, token string) (string, *core.PublishError) {
	endpoint := fmt.Sprintf("%s/%s/media_publish", ig.baseURL, accountID)
	payload := map[string]string{
		"creation_id":  containerID,
		"access_token": token,
	}

	var out struct {
		ID string `json:"id"`
	}
	if perr := postJSON(ctx, ig.client, endpoint, nil, payload, &out); perr != nil {
		return "", perr
	}
	return out.ID, nil
}

// permalink is best effort; a missing permalink never fails the publish.
func (ig *Instagram) permalink(ctx context.Context, mediaID, token string) string {
	endpoint := fmt.Sprintf("%s/%s?fields=permalink&access_token=%s",
		ig.baseURL, mediaID, url.QueryEscape(token))

	var out struct {
		Permalink string `json:"permalink"`
	}
	if perr := getJSON(ctx, ig.client, endpoint, nil, &out); perr != nil {
		ig.logger.Debug("permalink lookup failed", "media_id", mediaID, "error", perr)
		return ""
	}
	return out.Permalink
}
