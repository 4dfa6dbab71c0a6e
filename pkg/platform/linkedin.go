package platform

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/publora/publora/pkg/core"
)

const defaultLinkedInBaseURL = "https://api.linkedin.com/v2"

// restliHeader must accompany every LinkedIn write call.
const restliHeader = "X-Restli-Protocol-Version"

const restliVersion = "2.0.0"

// LinkedIn publishes UGC posts, with an optional two-step media upload
// (register asset, then binary upload). The author URN travels in the
// request's Credential field.
type LinkedIn struct {
	settings
	creds core.CredentialStore
}

// NewLinkedIn creates the LinkedIn UGC adapter.
func NewLinkedIn(creds core.CredentialStore, opts ...Option) *LinkedIn {
	s := newSettings(defaultLinkedInBaseURL, "", LinkedInCharLimit)
	for _, opt := range opts {
		opt(&s)
	}
	return &LinkedIn{settings: s, creds: creds}
}

func (li *LinkedIn) Platform() core.Platform { return core.PlatformLinkedIn }

// Publish uploads each image as a feedshare asset and creates one UGC post
// referencing them.
func (li *LinkedIn) Publish(ctx context.Context, req *core.PublishRequest) *core.PublishResult {
	if perr := checkLength(req.Content, li.charLimit); perr != nil {
		return core.Failed(core.PlatformLinkedIn, perr)
	}
	if req.Credential == "" {
		return core.Failed(core.PlatformLinkedIn, core.NewPublishError(
			core.KindAuthError, "missing linkedin author urn"))
	}

	token, err := li.creds.GetValidAccessToken(ctx, req.Owner, core.PlatformLinkedIn)
	if err != nil {
		return core.Failed(core.PlatformLinkedIn, core.WrapPublishError(
			core.KindAuthError, "resolve access token", err))
	}

	var assets []string
	for _, imageURL := range req.ImageURLs {
		asset, perr := li.uploadImage(ctx, req.Credential, imageURL, token)
		if perr != nil {
			return core.Failed(core.PlatformLinkedIn, perr)
		}
		assets = append(assets, asset)
	}

	postID, perr := li.createPost(ctx, req, assets, token)
	if perr != nil {
		return core.Failed(core.PlatformLinkedIn, perr)
	}

	li.logger.Info("published to linkedin", "post_id", req.PostID, "urn", postID)
	return core.Succeeded(core.PlatformLinkedIn, postID,
		fmt.Sprintf("https://www.linkedin.com/feed/update/%s", url.PathEscape(postID)))
}

func (li *LinkedIn) authHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + token,
		restliHeader:    restliVersion,
	}
}

// uploadImage runs the two-step media upload: register the asset, then push
// the binary to the upload URL LinkedIn hands back.
func (li *LinkedIn) uploadImage(ctx context.Context, author, imageURL, token string) (string, *core.PublishError) {
	payload := map[string]any{
		"registerUploadRequest": map[string]any{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			"owner":   author,
			"serviceRelationships": []map[string]string{{
				"relationshipType": "OWNER",
				"identifier":       "urn:li:userGeneratedContent",
			}},
		},
	}

	var registered struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	endpoint := li.baseURL + "/assets?action=registerUpload"
	if perr := postJSON(ctx, li.client, endpoint, li.authHeaders(token), payload, &registered); perr != nil {
		return "", perr
	}

	uploadURL := ""
	for _, mech := range registered.Value.UploadMechanism {
		if mech.UploadURL != "" {
			uploadURL = mech.UploadURL
			break
		}
	}
	if uploadURL == "" || registered.Value.Asset == "" {
		return "", core.NewPublishError(core.KindPlatformError, "asset registration returned no upload url")
	}

	data, contentType, perr := fetchImage(ctx, li.client, imageURL)
	if perr != nil {
		return "", perr
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", core.WrapPublishError(core.KindPlatformError, "bad upload url", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", contentType)

	status, body, perr := send(li.client, httpReq)
	if perr != nil {
		return "", perr
	}
	if status < 200 || status > 299 {
		return "", statusError(kindForStatus(status), status, body)
	}
	return registered.Value.Asset, nil
}

func (li *LinkedIn) createPost(ctx context.Context, req *core.PublishRequest, assets []string, token string) (string, *core.PublishError) {
	category := "NONE"
	var media []map[string]any
	if len(assets) > 0 {
		category = "IMAGE"
		for _, asset := range assets {
			media = append(media, map[string]any{
				"status": "READY",
				"media":  asset,
			})
		}
	}

	payload := map[string]any{
		"author":         req.Credential,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]string{"text": req.Content},
				"shareMediaCategory": category,
				"media":              media,
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	var out struct {
		ID string `json:"id"`
	}
	if perr := postJSON(ctx, li.client, li.baseURL+"/ugcPosts", li.authHeaders(token), payload, &out); perr != nil {
		return "", perr
	}
	if out.ID == "" {
		return "", core.NewPublishError(core.KindPlatformError, "post create returned no id")
	}
	return out.ID, nil
}
