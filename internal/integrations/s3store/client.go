package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const (
	audioContentType = "audio/mpeg"
	audioExtension   = ".mp3"

	// defaultLinkExpiry bounds presigned links to 7 days. Expiry is the only
	// access-control boundary on uploaded audio.
	defaultLinkExpiry = 7 * 24 * time.Hour
)

// s3API is the minimal S3 interface required for uploads.
// *s3.Client from aws-sdk-go-v2 satisfies this interface.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// presignAPI is the minimal presigning interface required for links.
// *s3.PresignClient satisfies this interface.
type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Client wraps an S3 bucket holding synthesized audio objects.
type Client struct {
	api       s3API
	presigner presignAPI
	bucket    string
}

// New creates a new s3store Client.
func New(api s3API, presigner presignAPI, bucket string) (*Client, error) {
	if api == nil {
		return nil, errors.New("s3store: api must not be nil")
	}
	if presigner == nil {
		return nil, errors.New("s3store: presigner must not be nil")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("s3store: bucket must not be empty")
	}
	return &Client{api: api, presigner: presigner, bucket: bucket}, nil
}

// GenerateAudioName produces a unique audio object name.
func GenerateAudioName() string {
	return uuid.NewString() + audioExtension
}

// Upload stores an audio byte stream under objectName with the audio content
// type and optional metadata.
func (c *Client) Upload(ctx context.Context, audio []byte, objectName string, metadata map[string]string) error {
	if len(audio) == 0 {
		return errors.New("s3store: Upload: audio must not be empty")
	}
	if strings.TrimSpace(objectName) == "" {
		return errors.New("s3store: Upload: object name is required")
	}

	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(objectName),
		Body:          bytes.NewReader(audio),
		ContentType:   aws.String(audioContentType),
		ContentLength: aws.Int64(int64(len(audio))),
		Metadata:      metadata,
	})
	if err != nil {
		return fmt.Errorf("s3store: Upload %q: %w", objectName, err)
	}
	return nil
}

// PresignedLink returns a time-limited retrieval URL for an uploaded object.
// A non-positive expiry falls back to the 7-day default.
func (c *Client) PresignedLink(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	if strings.TrimSpace(objectName) == "" {
		return "", errors.New("s3store: PresignedLink: object name is required")
	}
	if expiry <= 0 {
		expiry = defaultLinkExpiry
	}

	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectName),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("s3store: PresignedLink %q: %w", objectName, err)
	}
	return req.URL, nil
}
