package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publora/publora/pkg/core"
)

func newTestStore(t *testing.T) *GormPostStore {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)

	store := NewGormPostStore(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func testPost(scheduledFor time.Time) *core.ScheduledPost {
	return &core.ScheduledPost{
		Owner: "user-7",
		Content: map[core.Platform]string{
			"": "hello world",
		},
		Platforms:    []core.Platform{core.PlatformDiscord, core.PlatformTwitter},
		ScheduledFor: scheduledFor,
		Status:       core.PostStatusScheduled,
	}
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	post := testPost(time.Now().Add(time.Hour))
	require.NoError(t, store.Create(ctx, post))
	require.NotEmpty(t, post.ID, "missing IDs are generated")

	loaded, err := store.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-7", loaded.Owner)
	assert.Equal(t, "hello world", loaded.ContentFor(core.PlatformDiscord))
	assert.ElementsMatch(t, post.Platforms, loaded.Platforms)
}

func TestGet_Missing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestLoadDuePosts_OrderAndFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	later := testPost(now.Add(-time.Minute))
	earlier := testPost(now.Add(-time.Hour))
	future := testPost(now.Add(time.Hour))
	published := testPost(now.Add(-time.Hour))
	published.Status = core.PostStatusPublished

	for _, p := range []*core.ScheduledPost{later, earlier, future, published} {
		require.NoError(t, store.Create(ctx, p))
	}

	due, err := store.LoadDuePosts(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, earlier.ID, due[0].ID, "oldest first")
	assert.Equal(t, later.ID, due[1].ID)
}

func TestLoadDuePosts_Limit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Create(ctx, testPost(now.Add(-time.Hour))))
	}

	due, err := store.LoadDuePosts(ctx, now, 3)
	require.NoError(t, err)
	assert.Len(t, due, 3)
}

func TestMarkProcessing_SingleWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	post := testPost(time.Now().Add(-time.Minute))
	require.NoError(t, store.Create(ctx, post))

	ok, err := store.MarkProcessing(ctx, post.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second dispatcher loses the race.
	ok, err = store.MarkProcessing(ctx, post.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	loaded, err := store.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PostStatusProcessing, loaded.Status)
}

func TestUpdateStatus_WithResults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	post := testPost(time.Now())
	require.NoError(t, store.Create(ctx, post))

	results := map[core.Platform]core.PublishResult{
		core.PlatformDiscord: *core.Succeeded(core.PlatformDiscord, "123", ""),
	}
	require.NoError(t, store.UpdateStatus(ctx, post.ID, core.PostStatusPublished, results))

	loaded, err := store.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PostStatusPublished, loaded.Status)
	require.Contains(t, loaded.Results, core.PlatformDiscord)
	assert.True(t, loaded.Results[core.PlatformDiscord].Success)
}

func TestUpdateStatus_Missing(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateStatus(context.Background(), "nope", core.PostStatusFailed, nil)
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestSaveResult_MergesPerPlatform(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	post := testPost(time.Now())
	require.NoError(t, store.Create(ctx, post))

	require.NoError(t, store.SaveResult(ctx, post.ID,
		*core.Succeeded(core.PlatformDiscord, "d-1", "")))
	require.NoError(t, store.SaveResult(ctx, post.ID,
		*core.Failed(core.PlatformTwitter, core.NewPublishError(core.KindAuthError, "expired"))))

	loaded, err := store.Get(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Results, 2)
	assert.True(t, loaded.Results[core.PlatformDiscord].Success)
	assert.Equal(t, core.KindAuthError, loaded.Results[core.PlatformTwitter].ErrorKind)
	assert.Equal(t, core.PostStatusScheduled, loaded.Status, "SaveResult never touches status")
}

func TestCountOverdue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Create(ctx, testPost(now.Add(-time.Hour))))
	require.NoError(t, store.Create(ctx, testPost(now.Add(-time.Minute))))
	require.NoError(t, store.Create(ctx, testPost(now.Add(time.Hour))))

	count, err := store.CountOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
