package s3

import (
	"context"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	s3errors "github.com/input-output-hk/catalyst-forge-release/aws/s3/errors"
	"github.com/input-output-hk/catalyst-forge-release/aws/s3/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-release/aws/s3/s3types"
)

const (
	// DefaultRegion is used when neither options nor the environment name one.
	DefaultRegion = "us-west-2"

	// MinPartSize is the smallest part S3 accepts, except for the last part.
	MinPartSize int64 = 5 * 1024 * 1024

	// DefaultPartSize is the multipart chunk size.
	DefaultPartSize int64 = 8 * 1024 * 1024

	// DefaultMultipartThreshold is the size at which uploads switch to multipart.
	DefaultMultipartThreshold int64 = 100 * 1024 * 1024
)

// Client uploads and manages objects in a single S3-compatible store.
type Client struct {
	api       s3api.S3API
	fs        billy.Filesystem
	partSize  int64
	threshold int64
}

func defaultClientConfig() *s3types.ClientConfig {
	return &s3types.ClientConfig{
		MaxRetries:         3,
		PartSize:           DefaultPartSize,
		MultipartThreshold: DefaultMultipartThreshold,
	}
}

// New creates a client. Credentials come from WithStaticCredentials when
// given, otherwise from the default AWS credential chain.
func New(ctx context.Context, opts ...s3types.Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	var awsCfg aws.Config
	if cfg.CustomAWSConfig != nil {
		awsCfg = *cfg.CustomAWSConfig
	} else {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
		}
		if cfg.Credentials != nil {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					cfg.Credentials.AccessKeyID,
					cfg.Credentials.SecretAccessKey,
					cfg.Credentials.SessionToken,
				),
			))
		}
		if cfg.MaxRetries > 0 {
			loadOpts = append(loadOpts, config.WithRetryMaxAttempts(cfg.MaxRetries))
		}

		var err error
		awsCfg, err = config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, s3errors.NewError("client initialization", err)
		}
	}

	if cfg.Region != "" {
		awsCfg.Region = cfg.Region
	} else if awsCfg.Region == "" {
		awsCfg.Region = DefaultRegion
	}

	var s3Opts []func(*s3.Options)
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	if cfg.Endpoint != "" {
		endpoint := strings.TrimRight(cfg.Endpoint, "/")
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			// Third-party stores frequently reject the SDK's default
			// trailing checksums.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		})
	}
	if cfg.Timeout > 0 {
		httpClient := &http.Client{Timeout: cfg.Timeout}
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.HTTPClient = httpClient
		})
	}

	return newClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

// NewWithClient creates a client around an existing S3API implementation.
func NewWithClient(api s3api.S3API, opts ...s3types.Option) *Client {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return newClient(api, cfg)
}

func newClient(api s3api.S3API, cfg *s3types.ClientConfig) *Client {
	filesystem := cfg.Filesystem
	if filesystem == nil {
		filesystem = osfs.New("/")
	}
	return &Client{
		api:       api,
		fs:        filesystem,
		partSize:  cfg.PartSize,
		threshold: cfg.MultipartThreshold,
	}
}
