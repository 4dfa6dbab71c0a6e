package platform

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/publora/publora/pkg/core"
)

// fakeCreds is a canned credential store.
type fakeCreds struct {
	token string
	err   error
}

func (f *fakeCreds) GetValidAccessToken(ctx context.Context, owner string, platform core.Platform) (string, error) {
	return f.token, f.err
}

func TestCheckLength(t *testing.T) {
	assert.Nil(t, checkLength(strings.Repeat("a", 280), 280))

	perr := checkLength(strings.Repeat("a", 281), 280)
	assert.NotNil(t, perr)
	assert.Equal(t, core.KindContentTooLong, perr.Kind)
}

func TestCheckLength_CountsRunesNotBytes(t *testing.T) {
	// 10 multi-byte characters are 10 characters, not 30.
	assert.Nil(t, checkLength(strings.Repeat("é", 10), 10))
}

func TestCredentialFailureMapsToAuthError(t *testing.T) {
	creds := &fakeCreds{err: errors.New("token expired")}

	for _, adapter := range []Adapter{
		NewLinkedIn(creds),
		NewInstagram(creds),
		NewTwitter(creds),
	} {
		req := &core.PublishRequest{
			Platform:   adapter.Platform(),
			Content:    "hello",
			Credential: "cred-ref",
			ImageURLs:  []string{"https://cdn.example.com/pic.jpg"},
		}
		result := adapter.Publish(context.Background(), req)
		assert.False(t, result.Success)
		assert.Equal(t, core.KindAuthError, result.ErrorKind, "adapter %s", adapter.Platform())
	}
}
