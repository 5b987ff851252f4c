package s3

import (
	"strings"

	"github.com/yabinmeng/opscs3restore/internal/errors"
)

// Config contains all configuration necessary to connect to the bucket
// OpsCenter writes its backups to.
type Config struct {
	Endpoint      string
	UseHTTP       bool
	KeyID, Secret string
	Bucket        string
	Region        string
	BucketLookup  string

	// AllowAnonymous permits unsigned requests when no credentials are found.
	AllowAnonymous bool

	Connections uint
	MaxRetries  uint
}

const defaultEndpoint = "s3.amazonaws.com"

// NewConfig returns a new Config with the default values filled in.
func NewConfig() Config {
	return Config{
		Connections: 5,
	}
}

// endpoint returns the configured endpoint, falling back to the regional AWS
// endpoint.
func (cfg Config) endpoint() string {
	if cfg.Endpoint != "" {
		return cfg.Endpoint
	}
	if cfg.Region != "" {
		return "s3." + cfg.Region + ".amazonaws.com"
	}
	return defaultEndpoint
}

// Validate checks that the configuration is usable.
func (cfg Config) Validate() error {
	if cfg.Bucket == "" {
		return errors.New("s3: bucket name is empty")
	}
	if strings.Contains(cfg.Bucket, "/") {
		return errors.Errorf("s3: invalid bucket name %q", cfg.Bucket)
	}
	if cfg.Connections == 0 {
		return errors.New("s3: number of connections must be positive")
	}
	if (cfg.KeyID == "") != (cfg.Secret == "") {
		return errors.New("s3: key id and secret must be given together")
	}
	return nil
}
