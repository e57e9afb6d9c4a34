package storage

import (
	"context"
	"net/http/httptest"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/haierkeys/notegpt-sync-service/pkg/code"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/webdav"
)

func keys(objs []Object) []string {
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.Key)
	}
	sort.Strings(out)
	return out
}

func TestNewClient_Validates(t *testing.T) {
	_, err := NewClient(nil)
	assert.ErrorIs(t, err, code.ErrorInvalidStorageType)

	_, err = NewClient(&Config{Type: "ftp"})
	assert.ErrorIs(t, err, code.ErrorInvalidStorageType)

	_, err = NewClient(&Config{Type: R2, BucketName: "b", AccessKeyID: "id", AccessKeySecret: "secret"})
	assert.ErrorContains(t, err, "account-id")

	_, err = NewClient(&Config{Type: MinIO, BucketName: "b", AccessKeyID: "id", AccessKeySecret: "secret"})
	assert.ErrorContains(t, err, "endpoint")

	_, err = NewClient(&Config{Type: OSS})
	assert.Error(t, err)

	for _, typ := range []Type{S3, R2, MinIO} {
		c, err := NewClient(&Config{
			Type:            typ,
			Endpoint:        "http://127.0.0.1:9000",
			AccountID:       "acc",
			BucketName:      "backups",
			AccessKeyID:     "id",
			AccessKeySecret: "secret",
		})
		require.NoError(t, err, typ)
		assert.IsType(t, &s3Store{}, c)
	}
}

func TestKeyPrefix(t *testing.T) {
	assert.Equal(t, "", keyPrefix(""))
	assert.Equal(t, "", keyPrefix("/"))
	assert.Equal(t, "a/b/", keyPrefix("/a/b/"))
	assert.Equal(t, "a/", keyPrefix("a/../a"))
}

func TestLocalFS_SendListDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := NewClient(&Config{Type: LOCAL, SavePath: dir, CustomPath: "notes"})
	require.NoError(t, err)

	objs, err := c.List(ctx, "snapshot_")
	require.NoError(t, err)
	assert.Empty(t, objs)

	modTime := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	saved, err := c.SendContent(ctx, "snapshot_1.json", []byte(`{"notes":[]}`), modTime)
	require.NoError(t, err)
	_, err = c.SendContent(ctx, "snapshot_2.json", []byte(`{}`), time.Time{})
	require.NoError(t, err)
	_, err = c.SendContent(ctx, "other/readme.txt", []byte("x"), time.Time{})
	require.NoError(t, err)

	content, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, `{"notes":[]}`, string(content))
	info, err := os.Stat(saved)
	require.NoError(t, err)
	assert.WithinDuration(t, modTime, info.ModTime(), time.Second)

	objs, err = c.List(ctx, "snapshot_")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshot_1.json", "snapshot_2.json"}, keys(objs))

	require.NoError(t, c.Delete(ctx, "snapshot_1.json"))
	require.NoError(t, c.Delete(ctx, "snapshot_1.json"))

	objs, err = c.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"other/readme.txt", "snapshot_2.json"}, keys(objs))
}

func TestWebDAV_SendListDelete(t *testing.T) {
	srv := httptest.NewServer(&webdav.Handler{
		FileSystem: webdav.NewMemFS(),
		LockSystem: webdav.NewMemLS(),
	})
	defer srv.Close()

	ctx := context.Background()
	c, err := NewClient(&Config{Type: WebDAV, Endpoint: srv.URL, CustomPath: "backups/notegpt"})
	require.NoError(t, err)

	objs, err := c.List(ctx, "snapshot_")
	require.NoError(t, err)
	assert.Empty(t, objs)

	saved, err := c.SendContent(ctx, "snapshot_1.json", []byte("one"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "/backups/notegpt/snapshot_1.json", saved)
	_, err = c.SendContent(ctx, "snapshot_2.json", []byte("two!"), time.Now())
	require.NoError(t, err)

	objs, err = c.List(ctx, "snapshot_")
	require.NoError(t, err)
	require.Equal(t, []string{"snapshot_1.json", "snapshot_2.json"}, keys(objs))

	require.NoError(t, c.Delete(ctx, "snapshot_1.json"))
	objs, err = c.List(ctx, "snapshot_")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, int64(4), objs[0].Size)
}
