package s3blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio.local:9000", normaliseEndpoint("minio.local:9000", true))
	assert.Equal(t, "http://minio.local:9000", normaliseEndpoint("minio.local:9000", false))
	assert.Equal(t, "http://e2.example.com", normaliseEndpoint("http://e2.example.com", true))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("localhost:9000", false))
	assert.Equal(t, "https://s3.us-east-1.amazonaws.com", normaliseEndpoint("s3.us-east-1.amazonaws.com", true))
}

func TestNew_RequiresBucketAndRegion(t *testing.T) {
	_, err := New(context.Background(), ClientConfig{Region: "us-east-1"})
	require.Error(t, err)
	_, err = New(context.Background(), ClientConfig{Bucket: "payloads"})
	require.Error(t, err)
}

func TestNew_BindsBucket(t *testing.T) {
	c, err := New(context.Background(), ClientConfig{
		Endpoint:       "localhost:9000",
		Region:         "us-east-1",
		Bucket:         "payloads",
		AccessKey:      "ak",
		SecretKey:      "sk",
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "payloads", c.Bucket())
	assert.NotNil(t, NewWriter(c))
}
