package webtoonquiz

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBlobStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	rdb, err := NewRedisBlobStore(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	defer rdb.Close()

	_, ok, err := rdb.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rdb.Put(ctx, "k", []byte(`{"projects":[]}`)))
	data, ok, err := rdb.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"projects":[]}`, string(data))
}

func TestRecordStoreOnRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	rdb, err := NewRedisBlobStore(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	defer rdb.Close()

	rs := newTestStore(t, rdb)
	project, err := rs.CreateProject(ctx, "Lookism")
	require.NoError(t, err)
	_, err = rs.CreateQuiz(ctx, project.ID, "Episode 300", sampleQuestions(3))
	require.NoError(t, err)

	raw, err := mr.Get(DefaultStorageKey)
	require.NoError(t, err)
	assert.Contains(t, raw, `"lastSelectedProjectId":"`+project.ID+`"`)
	assert.Zero(t, mr.TTL(DefaultStorageKey), "records never expire")
}

func TestRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisBlobStore(context.Background(), addr, "", 0)
	assert.Error(t, err)
}

func TestOpenBlobStore(t *testing.T) {
	ctx := context.Background()

	blobs, closeFn, err := OpenBlobStore(ctx, StorageConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryBlobStore{}, blobs)
	assert.NoError(t, closeFn())

	mr := miniredis.RunT(t)
	blobs, closeFn, err = OpenBlobStore(ctx, StorageConfig{Type: "redis", RedisAddr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &RedisBlobStore{}, blobs)
	assert.NoError(t, closeFn())

	_, _, err = OpenBlobStore(ctx, StorageConfig{Type: "cassette"})
	assert.Error(t, err)
}
