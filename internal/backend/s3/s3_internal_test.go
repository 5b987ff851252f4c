package s3

import (
	"context"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/yabinmeng/opscs3restore/internal/errors"
	rtest "github.com/yabinmeng/opscs3restore/internal/test"
)

func staticOnly(t testing.TB) {
	old := credentialChain
	credentialChain = func(cfg Config) []credentials.Provider {
		return []credentials.Provider{
			&credentials.Static{
				Value: credentials.Value{
					AccessKeyID:     cfg.KeyID,
					SecretAccessKey: cfg.Secret,
				},
			},
		}
	}
	t.Cleanup(func() {
		credentialChain = old
	})
}

func TestOpenNoCredentials(t *testing.T) {
	staticOnly(t)

	cfg := NewConfig()
	cfg.Bucket = "opsc-backups"

	_, err := Open(context.TODO(), cfg, http.DefaultTransport)
	rtest.ErrorIs(t, err, ErrNoCredentials)

	cfg.AllowAnonymous = true
	be, err := Open(context.TODO(), cfg, http.DefaultTransport)
	rtest.OK(t, err)
	rtest.Equals(t, "opsc-backups", be.Location())
}

func TestOpenStaticCredentials(t *testing.T) {
	staticOnly(t)

	cfg := NewConfig()
	cfg.Bucket = "opsc-backups"
	cfg.Region = "us-east-1"
	cfg.KeyID = "AKIAEXAMPLE"
	cfg.Secret = "secret"
	cfg.Connections = 8

	be, err := Open(context.TODO(), cfg, http.DefaultTransport)
	rtest.OK(t, err)
	rtest.Equals(t, uint(8), be.Connections())
	rtest.OK(t, be.Close())
}

func TestOpenBadBucketLookup(t *testing.T) {
	staticOnly(t)

	cfg := NewConfig()
	cfg.Bucket = "opsc-backups"
	cfg.KeyID = "AKIAEXAMPLE"
	cfg.Secret = "secret"
	cfg.BucketLookup = "virtual"

	_, err := Open(context.TODO(), cfg, http.DefaultTransport)
	rtest.Assert(t, err != nil, "bad bucket lookup style accepted")
}

func TestErrorClassification(t *testing.T) {
	be := &Backend{}

	for _, test := range []struct {
		err                 error
		notExist, permanent bool
	}{
		{minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, true, true},
		{errors.Wrap(minio.ErrorResponse{Code: "NoSuchBucket"}, "List"), true, true},
		{minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, false, true},
		{minio.ErrorResponse{Code: "InternalError", StatusCode: http.StatusInternalServerError}, false, false},
		{minio.ErrorResponse{Code: "SlowDown", StatusCode: http.StatusServiceUnavailable}, false, false},
		{errors.New("connection reset by peer"), false, false},
	} {
		rtest.Equals(t, test.notExist, be.IsNotExist(test.err), test.err.Error())
		rtest.Equals(t, test.permanent, be.IsPermanentError(test.err), test.err.Error())
	}
}
