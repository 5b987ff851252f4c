package s3

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/yabinmeng/opscs3restore/internal/backend"
	"github.com/yabinmeng/opscs3restore/internal/debug"
	"github.com/yabinmeng/opscs3restore/internal/errors"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNoCredentials is returned by Open when no credentials could be found
// and anonymous access is not allowed.
var ErrNoCredentials = errors.New("no S3 credentials found")

// Backend reads objects from an S3 bucket.
type Backend struct {
	client *minio.Client
	cfg    Config
}

// make sure that *Backend implements backend.Backend
var _ backend.Backend = &Backend{}

// credentialChain returns the providers tried in order:
//   - Static credentials provided by the configuration
//   - AWS env vars (i.e. AWS_ACCESS_KEY_ID)
//   - Minio env vars (i.e. MINIO_ACCESS_KEY)
//   - AWS creds file (i.e. AWS_SHARED_CREDENTIALS_FILE or ~/.aws/credentials)
//   - Minio creds file (i.e. MINIO_SHARED_CREDENTIALS_FILE or ~/.mc/config.json)
//   - IAM profile based credentials. (performs an HTTP
//     call to a pre-defined endpoint, only valid inside
//     configured ec2 instances)
var credentialChain = func(cfg Config) []credentials.Provider {
	return []credentials.Provider{
		&credentials.Static{
			Value: credentials.Value{
				AccessKeyID:     cfg.KeyID,
				SecretAccessKey: cfg.Secret,
			},
		},
		&credentials.EnvAWS{},
		&credentials.EnvMinio{},
		&credentials.FileAWSCredentials{},
		&credentials.FileMinioClient{},
		&credentials.IAM{
			Client: &http.Client{
				Transport: http.DefaultTransport,
			},
		},
	}
}

// Open connects to the bucket described by cfg. rt is used for all requests
// to the store.
func Open(_ context.Context, cfg Config, rt http.RoundTripper) (*Backend, error) {
	debug.Log("open, bucket %v at %v", cfg.Bucket, cfg.endpoint())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.MaxRetries > 0 {
		minio.MaxRetry = int(cfg.MaxRetries)
	}

	creds := credentials.NewChainCredentials(credentialChain(cfg))

	c, err := creds.Get()
	if err != nil {
		return nil, errors.Wrap(err, "creds.Get")
	}

	if c.SignerType == credentials.SignatureAnonymous {
		if !cfg.AllowAnonymous {
			return nil, errors.WithStack(ErrNoCredentials)
		}
		debug.Log("using anonymous access for %#v", cfg.endpoint())
	}

	options := &minio.Options{
		Creds:     creds,
		Secure:    !cfg.UseHTTP,
		Region:    cfg.Region,
		Transport: rt,
	}

	switch strings.ToLower(cfg.BucketLookup) {
	case "", "auto":
		options.BucketLookup = minio.BucketLookupAuto
	case "dns":
		options.BucketLookup = minio.BucketLookupDNS
	case "path":
		options.BucketLookup = minio.BucketLookupPath
	default:
		return nil, errors.Errorf(`bad bucket-lookup style %q must be "auto", "path" or "dns"`, cfg.BucketLookup)
	}

	client, err := minio.New(cfg.endpoint(), options)
	if err != nil {
		return nil, errors.Wrap(err, "minio.New")
	}

	return &Backend{
		client: client,
		cfg:    cfg,
	}, nil
}

// IsNotExist returns true if the error is caused by a not existing object.
func (be *Backend) IsNotExist(err error) bool {
	var e minio.ErrorResponse
	return errors.As(err, &e) && (e.Code == "NoSuchKey" || e.Code == "NoSuchBucket")
}

// IsPermanentError returns true if retrying cannot help: the object or
// bucket is missing or access is denied.
func (be *Backend) IsPermanentError(err error) bool {
	if be.IsNotExist(err) {
		return true
	}

	var merr minio.ErrorResponse
	if errors.As(err, &merr) {
		if merr.Code == "InvalidRange" || merr.Code == "AccessDenied" {
			return true
		}
		if merr.StatusCode == http.StatusForbidden || merr.StatusCode == http.StatusNotFound {
			return true
		}
	}

	return false
}

func (be *Backend) Connections() uint {
	return be.cfg.Connections
}

// Location returns this backend's location (the bucket name).
func (be *Backend) Location() string {
	return be.cfg.Bucket
}

// Load runs fn with a reader that yields the contents of the object at key.
func (be *Backend) Load(ctx context.Context, key string, fn func(rd io.Reader) error) error {
	return backend.DefaultLoad(ctx, key, be.openReader, fn)
}

func (be *Backend) openReader(ctx context.Context, key string) (io.ReadCloser, error) {
	debug.Log("Load %v from %v", key, be.cfg.Bucket)

	ctx, cancel := context.WithCancel(ctx)

	coreClient := minio.Core{Client: be.client}
	rd, _, _, err := coreClient.GetObject(ctx, be.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		cancel()
		return nil, err
	}

	return &cancelOnClose{ReadCloser: rd, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// List runs fn for each object below prefix. When an error occurs (or fn
// returns an error), List stops and returns it.
func (be *Backend) List(ctx context.Context, prefix string, fn func(backend.ObjectInfo) error) error {
	debug.Log("listing %v", prefix)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listresp := be.client.ListObjects(ctx, be.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for obj := range listresp {
		if obj.Err != nil {
			return obj.Err
		}

		// directory markers created by some tools
		if obj.Key == "" || strings.HasSuffix(obj.Key, "/") {
			continue
		}

		fi := backend.ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := fn(fi)
		if err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return ctx.Err()
}

// Close does nothing
func (be *Backend) Close() error { return nil }
