package athena

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultDownloadExpiry is how long a presigned result URL stays valid.
const DefaultDownloadExpiry = 15 * time.Minute

// PresignAPI is the subset of the S3 presign client used here.
type PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Presigner mints temporary download URLs for query results the remote
// service persisted to S3, so callers can pull full result files without
// paging through the API.
type Presigner struct {
	api PresignAPI
}

// NewPresigner creates a Presigner backed by the real S3 client.
func NewPresigner(cfg aws.Config) *Presigner {
	return &Presigner{api: s3.NewPresignClient(s3.NewFromConfig(cfg))}
}

// NewPresignerFromAPI creates a Presigner from an explicit API implementation (for testing).
func NewPresignerFromAPI(api PresignAPI) *Presigner {
	return &Presigner{api: api}
}

// DownloadURL returns a presigned GET URL for an s3://bucket/key result
// location.
func (p *Presigner) DownloadURL(ctx context.Context, resultLocation string, expiry time.Duration) (string, error) {
	bucket, key, err := splitS3Path(resultLocation)
	if err != nil {
		return "", err
	}
	if expiry <= 0 {
		expiry = DefaultDownloadExpiry
	}

	req, err := p.api.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("athena: presign %s: %w", resultLocation, err)
	}
	return req.URL, nil
}

func splitS3Path(path string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(path, "s3://")
	if !ok {
		return "", "", fmt.Errorf("athena: result location %q is not an s3 path", path)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("athena: result location %q missing bucket or key", path)
	}
	return bucket, key, nil
}
