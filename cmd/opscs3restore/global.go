package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yabinmeng/opscs3restore/internal/backend"
	"github.com/yabinmeng/opscs3restore/internal/backend/limiter"
	"github.com/yabinmeng/opscs3restore/internal/backend/retry"
	"github.com/yabinmeng/opscs3restore/internal/backend/s3"
	"github.com/yabinmeng/opscs3restore/internal/backend/sema"
	"github.com/yabinmeng/opscs3restore/internal/catalog"
	"github.com/yabinmeng/opscs3restore/internal/cluster"
	"github.com/yabinmeng/opscs3restore/internal/config"
	"github.com/yabinmeng/opscs3restore/internal/debug"
	"github.com/yabinmeng/opscs3restore/internal/errors"
	"github.com/yabinmeng/opscs3restore/internal/manifest"
	"github.com/yabinmeng/opscs3restore/internal/terminal"
	"github.com/yabinmeng/opscs3restore/internal/ui"
	"github.com/yabinmeng/opscs3restore/internal/ui/progress"
)

// TimeFormat is the format used for all timestamps printed.
const TimeFormat = "2006-01-02 15:04:05"

// backupTimeLayout is the format of --backup-time, always in UTC.
const backupTimeLayout = "1/2/2006 3:04 PM"

// GlobalOptions hold all global options.
type GlobalOptions struct {
	ConfigFile string
	Quiet      bool
	Verbose    int
	User       string
	Password   string
	Keyspace   string
	Table      string
	BackupTime string

	cfg config.Config

	stdin  *os.File
	stdout io.Writer
	stderr io.Writer

	// verbosity is set as follows:
	//  0 means: don't print any messages except errors, this is used when --quiet is specified
	//  1 is the default: print essential messages
	//  2 means: print more messages, this is used when --verbose is specified
	//  3 means: print very detailed messages, this is used when --verbose=2 is specified
	verbosity uint

	backendTestHook  func() (backend.Backend, error)
	metadataTestHook func() (cluster.Metadata, error)
	resolverTestHook func(r *cluster.Resolver)
}

func newGlobalOptions() *GlobalOptions {
	return &GlobalOptions{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

func (opts *GlobalOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVarP(&opts.ConfigFile, "config", "c", "", "configuration `file` (default: $OPSCS3RESTORE_CONFIG)")
	f.BoolVarP(&opts.Quiet, "quiet", "q", false, "only print errors")
	// use empty parameter name as `-v, --verbose n` instead of the correct `--verbose=n` is confusing
	f.CountVarP(&opts.Verbose, "verbose", "v", "be verbose (specify multiple times or a level using --verbose=n``, max level/times is 2)")
	f.StringVarP(&opts.User, "user", "u", "", "cluster `user` name")
	f.StringVarP(&opts.Password, "password", "p", "", "cluster `password` (default: $OPSCS3RESTORE_PASSWORD, or prompt)")
	f.StringVarP(&opts.Keyspace, "keyspace", "k", "", "`keyspace` to select")
	f.StringVarP(&opts.Table, "table", "t", "", "`table` to select (default: all tables of the keyspace)")
	f.StringVarP(&opts.BackupTime, "backup-time", "b", "", "backup `time` in UTC, formatted as \"M/d/yyyy h:mm AM\"")

	opts.ConfigFile = os.Getenv("OPSCS3RESTORE_CONFIG")
}

// PreRun loads the configuration and sets up the output.
func (opts *GlobalOptions) PreRun(cmd *cobra.Command, needsConfig bool) error {
	opts.verbosity = 1
	if opts.Quiet && opts.Verbose > 0 {
		return errors.Fatal("--quiet and --verbose cannot be specified at the same time")
	}
	switch {
	case opts.Verbose >= 2:
		opts.verbosity = 3
	case opts.Verbose > 0:
		opts.verbosity = 2
	case opts.Quiet:
		opts.verbosity = 0
	}

	if !needsConfig {
		return nil
	}

	if opts.ConfigFile == "" {
		return errors.Fatal("please specify the configuration file with --config")
	}

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return errors.Fatalf("%v", err)
	}

	if err := config.ApplyEnv(&cfg, os.Environ()); err != nil {
		return errors.Fatalf("%v", err)
	}
	if err := config.ApplyFlags(&cfg, cmd.Flags()); err != nil {
		return errors.Fatalf("%v", err)
	}

	if cfg.DownloadThreads <= 0 {
		opts.Warnf("invalid number of download threads %d, using %d\n", cfg.DownloadThreads, config.Default().DownloadThreads)
		cfg.DownloadThreads = config.Default().DownloadThreads
	}

	if err := cfg.Validate(); err != nil {
		return errors.Fatalf("%v", err)
	}

	opts.cfg = cfg
	debug.Log("loaded config %v", opts.ConfigFile)
	return nil
}

func (opts *GlobalOptions) printer() progress.Printer {
	return ui.NewMessage(opts.stdout, opts.stderr, opts.verbosity)
}

// Printf writes the message to the configured stdout stream.
func (opts *GlobalOptions) Printf(format string, args ...interface{}) {
	_, err := fmt.Fprintf(opts.stdout, format, args...)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "unable to write to stdout: %v\n", err)
	}
}

// Warnf writes the message to the configured stderr stream.
func (opts *GlobalOptions) Warnf(format string, args ...interface{}) {
	_, err := fmt.Fprintf(opts.stderr, format, args...)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "unable to write to stderr: %v\n", err)
	}
}

// parseBackupTime parses a backup time like "6/10/2019 5:45 PM" in UTC.
func parseBackupTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(backupTimeLayout, strings.ToUpper(strings.TrimSpace(s)), time.UTC)
	if err != nil {
		return time.Time{}, errors.Fatalf("invalid backup time %q, expected format M/d/yyyy h:mm AM|PM", s)
	}
	return t, nil
}

// selection returns the criteria and backup time given on the command line.
func (opts *GlobalOptions) selection() (catalog.Criteria, time.Time, error) {
	if opts.Keyspace == "" {
		return catalog.Criteria{}, time.Time{}, errors.Fatal("please specify the keyspace with --keyspace")
	}
	if opts.BackupTime == "" {
		return catalog.Criteria{}, time.Time{}, errors.Fatal("please specify the backup time with --backup-time")
	}

	t, err := parseBackupTime(opts.BackupTime)
	if err != nil {
		return catalog.Criteria{}, time.Time{}, err
	}

	return catalog.Criteria{Keyspace: opts.Keyspace, Table: opts.Table}, t, nil
}

func (opts *GlobalOptions) newLocator(be backend.Lister) *manifest.Locator {
	return &manifest.Locator{
		Lister:     be,
		BasePrefix: opts.cfg.SnapshotBasePrefix,
		Marker:     opts.cfg.OpscMarker,
		FileName:   opts.cfg.ManifestFile,
	}
}

func (opts *GlobalOptions) newFilter(be backend.Lister) *catalog.Filter {
	return &catalog.Filter{
		Lister:        be,
		BasePrefix:    opts.cfg.SnapshotBasePrefix,
		SSTableMarker: opts.cfg.SSTablesMarker,
	}
}

// OpenBackend opens the bucket and wraps it with connection limiting, rate
// limiting and retries.
func OpenBackend(ctx context.Context, gopts *GlobalOptions, printer progress.Printer) (backend.Backend, error) {
	cfg := gopts.cfg

	var be backend.Backend
	if gopts.backendTestHook != nil {
		var err error
		be, err = gopts.backendTestHook()
		if err != nil {
			return nil, err
		}
	} else {
		rt, err := backend.Transport(backend.TransportOptions{
			RootCertFilenames: cfg.S3CACerts,
			InsecureTLS:       cfg.S3InsecureTLS,
		})
		if err != nil {
			return nil, errors.Fatal(err.Error())
		}

		s3cfg := newS3Config(cfg)
		if err := s3cfg.Validate(); err != nil {
			return nil, errors.Fatal(err.Error())
		}

		s3be, err := s3.Open(ctx, s3cfg, rt)
		if err != nil {
			return nil, err
		}
		be = s3be
	}

	be = sema.NewBackend(be)

	if cfg.DownloadLimitKB > 0 {
		be = limiter.LimitBackend(be, limiter.NewStaticLimiter(limiter.Limits{DownloadKb: cfg.DownloadLimitKB}))
	}

	report := func(msg string, err error, d time.Duration) {
		if d >= 0 {
			printer.E("%v returned error, retrying after %v: %v", msg, d, err)
		} else {
			printer.E("%v failed: %v", msg, err)
		}
	}
	success := func(msg string, retries int) {
		printer.E("%v operation successful after %d retries", msg, retries)
	}
	be = retry.New(be, cfg.S3Retries, report, success)

	if s3be := backend.AsBackend[*s3.Backend](be); s3be != nil {
		printer.V("using bucket %v", s3be.Location())
	}
	return be, nil
}

// newS3Config returns the store configuration for cfg. The client does a
// single attempt per request, retries happen in the retry backend.
func newS3Config(cfg config.Config) s3.Config {
	s3cfg := s3.NewConfig()
	s3cfg.Endpoint = cfg.S3Endpoint
	s3cfg.UseHTTP = cfg.S3UseHTTP
	s3cfg.Region = cfg.S3Region
	s3cfg.Bucket = cfg.S3Bucket
	s3cfg.KeyID = cfg.S3KeyID
	s3cfg.Secret = cfg.S3Secret
	s3cfg.MaxRetries = 1
	if cfg.S3Connections > 0 {
		s3cfg.Connections = cfg.S3Connections
	}
	return s3cfg
}

// OpenMetadata connects to the cluster, asking for the password if needed.
func OpenMetadata(ctx context.Context, gopts *GlobalOptions) (cluster.Metadata, error) {
	if gopts.metadataTestHook != nil {
		return gopts.metadataTestHook()
	}

	cfg := gopts.cfg
	cqlcfg := cluster.CQLConfig{
		ContactPoints:    strings.Split(cfg.ContactPoint, ","),
		Port:             cfg.Port,
		SSL:              cfg.UseSSL,
		CAFile:           cfg.SSLCAFile,
		CertFile:         cfg.SSLCertFile,
		KeyFile:          cfg.SSLKeyFile,
		HostVerification: cfg.SSLHostVerification,
		Timeout:          10 * time.Second,
	}

	if cfg.UserAuth {
		pw := cfg.Password
		if pw == "" {
			var err error
			pw, err = terminal.Prompt(ctx, gopts.stdin, os.Stderr, fmt.Sprintf("enter password for user %v: ", cfg.User))
			if err != nil {
				return nil, errors.Fatalf("unable to read password: %v", err)
			}
		}
		cqlcfg.Username = cfg.User
		cqlcfg.Password = pw
	}

	return cluster.Connect(ctx, cqlcfg)
}

// resolveHost returns the host id of this node, consulting the cluster
// only if override is empty.
func resolveHost(ctx context.Context, gopts *GlobalOptions, override string) (string, error) {
	r := cluster.NewResolver(gopts.cfg.IPMatchingNIC)
	if gopts.resolverTestHook != nil {
		gopts.resolverTestHook(r)
	}

	if override != "" {
		return r.Resolve(ctx, nil, override)
	}

	md, err := OpenMetadata(ctx, gopts)
	if err != nil {
		return "", err
	}
	defer func() { _ = md.Close() }()

	return r.Resolve(ctx, md, "")
}
