package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of the S3 client used by S3Fetcher.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher retrieves s3://bucket/key resources. The client is built from
// the default AWS credential chain on first use unless one is supplied.
type S3Fetcher struct {
	mu     sync.Mutex
	client S3API
}

// NewS3Fetcher creates an S3Fetcher. client may be nil.
func NewS3Fetcher(client S3API) *S3Fetcher {
	return &S3Fetcher{client: client}
}

func (f *S3Fetcher) api(ctx context.Context) (S3API, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		return f.client, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	f.client = s3.NewFromConfig(cfg)
	return f.client, nil
}

// parseS3URI splits s3://bucket/key into its parts.
func parseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != SchemeS3 || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 URI: %s", uri)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("missing object key in %s", uri)
	}
	return u.Host, key, nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return nil, &ResourceError{URI: uri, Err: err}
	}
	client, err := f.api(ctx)
	if err != nil {
		return nil, &ResourceError{URI: uri, Err: err}
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		rerr := &ResourceError{URI: uri, Err: err}
		var nsk *types.NoSuchKey
		var apiErr smithy.APIError
		switch {
		case errors.As(err, &nsk):
			rerr.Status = 404
			rerr.Detail = "not found"
		case errors.As(err, &apiErr):
			rerr.Detail = apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()
		}
		return nil, rerr
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &ResourceError{URI: uri, Err: fmt.Errorf("read object: %w", err)}
	}
	return data, nil
}
