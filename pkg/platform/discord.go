package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/publora/publora/pkg/core"
)

// Discord publishes through an incoming webhook: a single multipart POST, no
// OAuth. The webhook URL travels in the request's Credential field.
type Discord struct {
	settings
}

// webhookPayload is the payload_json part of the multipart form. The field
// set must match Discord's webhook schema exactly.
type webhookPayload struct {
	Content   string         `json:"content"`
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
	Embeds    []webhookEmbed `json:"embeds,omitempty"`
}

type webhookEmbed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// NewDiscord creates the Discord webhook adapter.
func NewDiscord(opts ...Option) *Discord {
	s := newSettings("", "", DiscordCharLimit)
	for _, opt := range opts {
		opt(&s)
	}
	return &Discord{settings: s}
}

func (d *Discord) Platform() core.Platform { return core.PlatformDiscord }

// Publish sends one webhook message, attaching each image as file0..fileN.
func (d *Discord) Publish(ctx context.Context, req *core.PublishRequest) *core.PublishResult {
	if perr := checkLength(req.Content, d.charLimit); perr != nil {
		return core.Failed(core.PlatformDiscord, perr)
	}

	webhookURL := req.Credential
	if !strings.HasPrefix(webhookURL, "http") {
		return core.Failed(core.PlatformDiscord, core.NewPublishError(
			core.KindInvalidWebhook, "missing or malformed webhook url"))
	}
	if d.baseURL != "" {
		webhookURL = d.baseURL
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	payload := webhookPayload{
		Content:   req.Content,
		Username:  d.username,
		AvatarURL: d.avatarURL,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return core.Failed(core.PlatformDiscord, core.WrapPublishError(
			core.KindUnknownError, "encode webhook payload", err))
	}
	if err := form.WriteField("payload_json", string(raw)); err != nil {
		return core.Failed(core.PlatformDiscord, core.WrapPublishError(
			core.KindUnknownError, "build multipart form", err))
	}

	for i, imageURL := range req.ImageURLs {
		data, contentType, perr := d.attach(ctx, imageURL)
		if perr != nil {
			return core.Failed(core.PlatformDiscord, perr)
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(
			`form-data; name="file%d"; filename="image%d%s"`, i, i, extensionFor(contentType)))
		header.Set("Content-Type", contentType)
		part, err := form.CreatePart(header)
		if err != nil {
			return core.Failed(core.PlatformDiscord, core.WrapPublishError(
				core.KindUnknownError, "build multipart form", err))
		}
		if _, err := part.Write(data); err != nil {
			return core.Failed(core.PlatformDiscord, core.WrapPublishError(
				core.KindUnknownError, "build multipart form", err))
		}
	}
	if err := form.Close(); err != nil {
		return core.Failed(core.PlatformDiscord, core.WrapPublishError(
			core.KindUnknownError, "build multipart form", err))
	}

	// wait=true makes Discord return the created message instead of a bare 204.
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL+"?wait=true", &buf)
	if err != nil {
		return core.Failed(core.PlatformDiscord, core.WrapPublishError(
			core.KindInvalidWebhook, "bad webhook url", err))
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	status, body, perr := send(d.client, httpReq)
	if perr != nil {
		return core.Failed(core.PlatformDiscord, perr)
	}
	if status < 200 || status > 299 {
		kind := kindForStatus(status)
		if status == http.StatusUnauthorized || status == http.StatusNotFound {
			// A dead or revoked webhook is a configuration problem, not an
			// auth problem.
			kind = core.KindInvalidWebhook
		}
		return core.Failed(core.PlatformDiscord, statusError(kind, status, body))
	}

	var message struct {
		ID string `json:"id"`
	}
	if len(body) > 0 {
		_ = json.Unmarshal(body, &message)
	}

	d.logger.Info("published to discord", "post_id", req.PostID, "message_id", message.ID)
	return core.Succeeded(core.PlatformDiscord, message.ID, "")
}

func (d *Discord) attach(ctx context.Context, imageURL string) ([]byte, string, *core.PublishError) {
	data, contentType, perr := fetchImage(ctx, d.client, imageURL)
	if perr != nil {
		return nil, "", perr
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", core.NewPublishError(core.KindInvalidMedia,
			fmt.Sprintf("attachment is %s, not an image", contentType))
	}
	return data, contentType, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
