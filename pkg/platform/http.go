package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/publora/publora/pkg/core"
)

// maxErrorBody caps how much of a platform error response is kept for the
// failure message.
const maxErrorBody = 512

// kindForStatus maps an HTTP status to an error kind. Adapter-specific
// overrides (Discord's webhook statuses) happen before this fallback.
func kindForStatus(status int) core.ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.KindAuthError
	case status == http.StatusTooManyRequests:
		return core.KindRateLimitExceeded
	case status >= 500:
		return core.KindPlatformError
	default:
		return core.KindPlatformError
	}
}

// kindForTransport classifies a round-trip error: deadline and timeout
// errors are TIMEOUT_ERROR, everything else NETWORK_ERROR.
func kindForTransport(err error) core.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.KindTimeoutError
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.KindTimeoutError
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return core.KindTimeoutError
	}
	return core.KindNetworkError
}

// send performs one HTTP exchange and returns the status and body, or a
// classified PublishError for transport failures.
func send(client *http.Client, req *http.Request) (int, []byte, *core.PublishError) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, core.WrapPublishError(kindForTransport(err),
			fmt.Sprintf("%s %s", req.Method, req.URL.Path), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, core.WrapPublishError(core.KindNetworkError,
			"read response body", err)
	}
	return resp.StatusCode, body, nil
}

// statusError builds the failure for a non-2xx platform response, folding a
// truncated body excerpt into the message.
func statusError(kind core.ErrorKind, status int, body []byte) *core.PublishError {
	excerpt := strings.TrimSpace(string(body))
	if len(excerpt) > maxErrorBody {
		excerpt = excerpt[:maxErrorBody]
	}
	msg := fmt.Sprintf("unexpected status %d", status)
	if excerpt != "" {
		msg = fmt.Sprintf("%s: %s", msg, excerpt)
	}
	return core.NewPublishError(kind, msg)
}

// postJSON sends a JSON payload and decodes a JSON response into out (when
// out is non-nil). Non-2xx statuses become classified failures.
func postJSON(ctx context.Context, client *http.Client, rawURL string, headers map[string]string, payload, out any) *core.PublishError {
	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			return core.WrapPublishError(core.KindUnknownError, "encode request", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, &buf)
	if err != nil {
		return core.WrapPublishError(core.KindUnknownError, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	status, body, perr := send(client, req)
	if perr != nil {
		return perr
	}
	if status < 200 || status > 299 {
		return statusError(kindForStatus(status), status, body)
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return core.WrapPublishError(core.KindPlatformError, "decode response", err)
		}
	}
	return nil
}

// getJSON fetches a JSON document.
func getJSON(ctx context.Context, client *http.Client, rawURL string, headers map[string]string, out any) *core.PublishError {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return core.WrapPublishError(core.KindUnknownError, "build request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	status, body, perr := send(client, req)
	if perr != nil {
		return perr
	}
	if status < 200 || status > 299 {
		return statusError(kindForStatus(status), status, body)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return core.WrapPublishError(core.KindPlatformError, "decode response", err)
		}
	}
	return nil
}

func unmarshalBody(body []byte, out any) *core.PublishError {
	if err := json.Unmarshal(body, out); err != nil {
		return core.WrapPublishError(core.KindPlatformError, "decode response", err)
	}
	return nil
}

// fetchImage downloads an already-hosted image so it can be re-uploaded to a
// platform that takes binary media. Adapters never host media themselves.
func fetchImage(ctx context.Context, client *http.Client, imageURL string) ([]byte, string, *core.PublishError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", core.WrapPublishError(core.KindInvalidMedia, "bad image url", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", core.WrapPublishError(kindForTransport(err), "fetch image", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", core.NewPublishError(core.KindInvalidMedia,
			fmt.Sprintf("image url returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", core.WrapPublishError(core.KindNetworkError, "read image body", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
