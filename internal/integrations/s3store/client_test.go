package s3store

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	putErr       error
	lastPutInput *s3.PutObjectInput
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.lastPutInput = in
	return &s3.PutObjectOutput{}, f.putErr
}

type fakePresigner struct {
	url         string
	err         error
	lastGetIn   *s3.GetObjectInput
	lastOptFns  []func(*s3.PresignOptions)
	presignCall int
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.presignCall++
	f.lastGetIn = in
	f.lastOptFns = optFns
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: f.url, Method: "GET"}, nil
}

func mustNewClient(t *testing.T, api *fakeS3, p *fakePresigner) *Client {
	t.Helper()
	c, err := New(api, p, "hippo-ai-audio")
	require.NoError(t, err)
	return c
}

func TestGenerateAudioName_Format(t *testing.T) {
	name := GenerateAudioName()
	require.True(t, strings.HasSuffix(name, ".mp3"))
	require.Len(t, name, 36+len(".mp3"))
}

func TestGenerateAudioName_NeverCollides(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		name := GenerateAudioName()
		_, dup := seen[name]
		require.False(t, dup, "duplicate name %q", name)
		seen[name] = struct{}{}
	}
}

func TestUpload_HappyPath(t *testing.T) {
	api := &fakeS3{}
	c := mustNewClient(t, api, &fakePresigner{})

	meta := map[string]string{"chatid": "9000", "timestamp": "1000"}
	err := c.Upload(context.Background(), []byte("mp3-bytes"), "abc.mp3", meta)
	require.NoError(t, err)

	require.Equal(t, "hippo-ai-audio", *api.lastPutInput.Bucket)
	require.Equal(t, "abc.mp3", *api.lastPutInput.Key)
	require.Equal(t, "audio/mpeg", *api.lastPutInput.ContentType)
	require.Equal(t, int64(len("mp3-bytes")), *api.lastPutInput.ContentLength)
	require.Equal(t, meta, api.lastPutInput.Metadata)

	body, err := io.ReadAll(api.lastPutInput.Body)
	require.NoError(t, err)
	require.Equal(t, []byte("mp3-bytes"), body)
}

func TestUpload_EmptyAudio(t *testing.T) {
	api := &fakeS3{}
	c := mustNewClient(t, api, &fakePresigner{})

	err := c.Upload(context.Background(), nil, "abc.mp3", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "audio")
	require.Nil(t, api.lastPutInput)
}

func TestUpload_EmptyObjectName(t *testing.T) {
	c := mustNewClient(t, &fakeS3{}, &fakePresigner{})
	err := c.Upload(context.Background(), []byte("x"), " ", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "object name")
}

func TestUpload_S3Error(t *testing.T) {
	api := &fakeS3{putErr: errors.New("NoCredentialProviders")}
	c := mustNewClient(t, api, &fakePresigner{})

	err := c.Upload(context.Background(), []byte("x"), "abc.mp3", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Upload")
}

func TestPresignedLink_HappyPath(t *testing.T) {
	p := &fakePresigner{url: "https://hippo-ai-audio.s3.amazonaws.com/abc.mp3?X-Amz-Expires=604800"}
	c := mustNewClient(t, &fakeS3{}, p)

	link, err := c.PresignedLink(context.Background(), "abc.mp3", 0)
	require.NoError(t, err)
	require.Equal(t, p.url, link)
	require.Equal(t, "hippo-ai-audio", *p.lastGetIn.Bucket)
	require.Equal(t, "abc.mp3", *p.lastGetIn.Key)
	require.Len(t, p.lastOptFns, 1)
}

func TestPresignedLink_DefaultExpiry(t *testing.T) {
	p := &fakePresigner{url: "https://example.com/abc.mp3"}
	c := mustNewClient(t, &fakeS3{}, p)

	_, err := c.PresignedLink(context.Background(), "abc.mp3", -1)
	require.NoError(t, err)

	opts := &s3.PresignOptions{}
	for _, fn := range p.lastOptFns {
		fn(opts)
	}
	require.Equal(t, 7*24*time.Hour, opts.Expires)
}

func TestPresignedLink_ExplicitExpiry(t *testing.T) {
	p := &fakePresigner{url: "https://example.com/abc.mp3"}
	c := mustNewClient(t, &fakeS3{}, p)

	_, err := c.PresignedLink(context.Background(), "abc.mp3", time.Hour)
	require.NoError(t, err)

	opts := &s3.PresignOptions{}
	for _, fn := range p.lastOptFns {
		fn(opts)
	}
	require.Equal(t, time.Hour, opts.Expires)
}

func TestPresignedLink_EmptyObjectName(t *testing.T) {
	c := mustNewClient(t, &fakeS3{}, &fakePresigner{})
	_, err := c.PresignedLink(context.Background(), " ", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "object name")
}

func TestPresignedLink_PresignError(t *testing.T) {
	p := &fakePresigner{err: errors.New("NoCredentialProviders")}
	c := mustNewClient(t, &fakeS3{}, p)

	_, err := c.PresignedLink(context.Background(), "abc.mp3", 0)
	require.Error(t, err)
	require.Contains(t, err.Error(), "PresignedLink")
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, &fakePresigner{}, "b")
	require.Error(t, err)
	_, err = New(&fakeS3{}, nil, "b")
	require.Error(t, err)
	_, err = New(&fakeS3{}, &fakePresigner{}, " ")
	require.Error(t, err)
}
