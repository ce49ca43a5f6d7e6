// Package r2 fetches blobs from Cloudflare R2 (or any S3-compatible store)
// with static credentials supplied through configuration.
package r2

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/pathology-bites/slidedex/internal/domain"
	"github.com/pathology-bites/slidedex/internal/storage"
)

// Driver is the metrics/config name of this source.
const Driver = "r2"

// ErrMissingCredentials signals an incomplete account id / key pair.
var ErrMissingCredentials = errors.New("r2: account id, access key id and secret access key are required")

// Config holds R2 connection parameters.
type Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the account-derived R2 endpoint (S3-compatible stores, tests).
	Endpoint   string
	HTTPClient *http.Client
}

// objectGetter is the consumer interface over the S3 client (ISP).
type objectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source implements storage.BlobSource over the S3 API.
type Source struct {
	client  objectGetter
	initErr error
}

var (
	_ storage.BlobSource = (*Source)(nil)
	_ storage.Checker    = (*Source)(nil)
)

// NewSource creates an R2 source. Missing credentials do not fail
// construction: every Fetch reports them so the server can still boot and
// surface the problem through health checks and 500 responses.
func NewSource(cfg Config) *Source {
	endpoint := cfg.Endpoint
	if endpoint == "" && cfg.AccountID != "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}
	if endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return &Source{initErr: ErrMissingCredentials}
	}

	opts := s3.Options{
		Region:       "auto",
		BaseEndpoint: aws.String(endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: true,
		// A single failed fetch is surfaced to the caller immediately.
		Retryer: aws.NopRetryer{},
	}
	if cfg.HTTPClient != nil {
		opts.HTTPClient = cfg.HTTPClient
	}
	return &Source{client: s3.New(opts)}
}

func newSourceWithClient(c objectGetter) *Source {
	return &Source{client: c}
}

// Fetch reads the whole object.
func (s *Source) Fetch(ctx context.Context, loc domain.Location) ([]byte, error) {
	if s.initErr != nil {
		return nil, storage.Unavailable(loc, s.initErr)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, storage.Unavailable(loc, fmt.Errorf("object not found: %w", err))
		}
		return nil, storage.Unavailable(loc, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, storage.Unavailable(loc, fmt.Errorf("read body: %w", err))
	}
	if len(data) == 0 {
		return nil, storage.Unavailable(loc, errors.New("empty body"))
	}
	return data, nil
}

// Check reports configuration problems without touching the network.
func (s *Source) Check(_ context.Context) error {
	return s.initErr
}
