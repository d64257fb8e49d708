package s3client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	c := TestClient(t, "exports")

	require.NoError(t, c.PutObject(ctx, "exports/u1/a.json", []byte(`{"a":1}`), "application/json"))
	data, err := c.GetObject(ctx, "exports/u1/a.json")
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(data))

	require.NoError(t, c.DeleteObject(ctx, "exports/u1/a.json"))
	_, err = c.GetObject(ctx, "exports/u1/a.json")
	require.True(t, errors.Is(err, ErrObjectNotFound), "got %v", err)

	require.NoError(t, c.DeleteObject(ctx, "exports/u1/never-existed.json"))
}

func TestClient_ListAndDeletePrefix(t *testing.T) {
	ctx := context.Background()
	c := TestClient(t, "exports")

	for _, key := range []string{"exports/u1/1.json", "exports/u1/2.json", "exports/u2/1.json"} {
		require.NoError(t, c.PutObject(ctx, key, []byte("{}"), "application/json"))
	}

	objs, err := c.List(ctx, "exports/u1/")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	require.Equal(t, "exports/u1/2.json", objs[0].Key)
	require.Equal(t, int64(2), objs[0].Size)
	require.Equal(t, c.GetPublicURL("exports/u1/2.json"), objs[0].URL)

	n, err := c.DeletePrefix(ctx, "exports/u1/")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	objs, err = c.List(ctx, "exports/u1/")
	require.NoError(t, err)
	require.Empty(t, objs)

	objs, err = c.List(ctx, "exports/u2/")
	require.NoError(t, err)
	require.Len(t, objs, 1)
}

func TestGetPublicURL_JoinsWithoutDoubleSlash(t *testing.T) {
	c := NewFromS3Client(nil, "b", "https://cdn.example.com/b/")
	require.Equal(t, "https://cdn.example.com/b/exports/x.json", c.GetPublicURL("/exports/x.json"))
	require.Equal(t, "b", c.BucketName())
}
