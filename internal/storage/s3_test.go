package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amici-chat/internal/config"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	data, _ := io.ReadAll(params.Body)
	f.body = string(data)
	return &s3.PutObjectOutput{}, f.err
}

func TestUploadBuildsKeyAndURL(t *testing.T) {
	client := &fakeS3{}
	u := NewS3UploaderWithClient(client, config.S3Config{Bucket: "files", PublicBaseURL: "https://cdn.example.com/"})
	u.newID = func() string { return "abc" }

	url, err := u.Upload(context.Background(), "user-1", "../My Photo.png", "image/png", strings.NewReader("png"), 3)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/uploads/user-1/abc/My_Photo.png", url)
	assert.Equal(t, "files", aws.ToString(client.input.Bucket))
	assert.Equal(t, "uploads/user-1/abc/My_Photo.png", aws.ToString(client.input.Key))
	assert.Equal(t, "image/png", aws.ToString(client.input.ContentType))
	assert.Equal(t, "png", client.body)
}

func TestUploadPropagatesErrors(t *testing.T) {
	u := NewS3UploaderWithClient(&fakeS3{err: assert.AnError}, config.S3Config{Bucket: "files", Region: "eu-west-1"})
	_, err := u.Upload(context.Background(), "u", "a.txt", "", strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestPublicBaseURL(t *testing.T) {
	assert.Equal(t, "http://minio:9000/files", publicBaseURL(config.S3Config{Bucket: "files", Endpoint: "http://minio:9000/"}))
	assert.Equal(t, "https://files.s3.eu-west-1.amazonaws.com", publicBaseURL(config.S3Config{Bucket: "files", Region: "eu-west-1"}))
}
