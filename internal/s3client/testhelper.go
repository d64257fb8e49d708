package s3client

import (
	"context"
	"testing"
)

// TestClient returns an in-memory bucket that is torn down with the test.
func TestClient(t testing.TB, bucketName string) *Client {
	t.Helper()

	c, stop, err := NewInMemory(context.Background(), bucketName)
	if err != nil {
		t.Fatalf("failed to start in-memory S3: %v", err)
	}
	t.Cleanup(stop)
	return c
}
