package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/yabinmeng/opscs3restore/internal/backend"
	"github.com/yabinmeng/opscs3restore/internal/backend/mem"
	"github.com/yabinmeng/opscs3restore/internal/cluster"
	"github.com/yabinmeng/opscs3restore/internal/config"
	"github.com/yabinmeng/opscs3restore/internal/errors"
	"github.com/yabinmeng/opscs3restore/internal/manifest"
	"github.com/yabinmeng/opscs3restore/internal/restorer"
	rtest "github.com/yabinmeng/opscs3restore/internal/test"
)

const (
	host1 = "6e2c7a3b-5a1c-4d8e-9a43-1f0e2d3c4b5a"
	host2 = "9b1d6f0e-2c3a-4b5d-8e7f-0a1b2c3d4e5f"

	backupTimeArg = "6/10/2019 5:45 PM"
)

type fakeMetadata struct {
	hosts []cluster.HostIdentity
}

func (m *fakeMetadata) Hosts(_ context.Context) ([]cluster.HostIdentity, error) {
	return m.hosts, nil
}

func (m *fakeMetadata) ClusterName(_ context.Context) (string, error) {
	return "Test Cluster", nil
}

func (m *fakeMetadata) Close() error { return nil }

type testEnvironment struct {
	gopts   *GlobalOptions
	be      *mem.MemoryBackend
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	home    string
	cfgFile string

	metadataCalls int
	localIP       net.IP
}

var components = []string{"CompressionInfo", "Data", "Filter", "Index", "Statistics", "Summary"}

// storeBackup writes a manifest for K1.T1 and K1.T2 with six files each.
func storeBackup(be *mem.MemoryBackend, hostID string) {
	var records []string
	for gen, table := range []string{"T1", "T2"} {
		for _, c := range components {
			name := fmt.Sprintf("mc-%d-big-%s.db", gen+1, c)
			records = append(records, fmt.Sprintf(`{"name": %q, "uniquifier": "u%d", "keyspace": "K1", "cf": %q, "version": "mc", "size": 1}`, name, gen+1, table))
			be.Put("snapshots/"+hostID+"/sstables/"+name, []byte(hostID+"/"+name))
		}
	}
	// one malformed record
	records = append(records, `{"name": "broken"}`)

	be.Put("snapshots/"+hostID+"/opscenter_adhoc_2019-06-10-17-45-00-UTC/backup.json",
		[]byte(`{"sstables": [`+strings.Join(records, ",")+`]}`))
}

func withTestEnvironment(t testing.TB) *testEnvironment {
	tempdir := rtest.TempDir(t)

	env := &testEnvironment{
		be:      mem.New(),
		stdout:  bytes.NewBuffer(nil),
		stderr:  bytes.NewBuffer(nil),
		home:    filepath.Join(tempdir, "download"),
		cfgFile: filepath.Join(tempdir, "config.yaml"),
		localIP: net.ParseIP("10.0.0.1"),
	}
	storeBackup(env.be, host1)

	cfg := fmt.Sprintf("dse_contact_point: 127.0.0.1\nlocal_download_home: %v\nopsc_s3_bucket_name: opsc-test\n", env.home)
	rtest.OK(t, os.WriteFile(env.cfgFile, []byte(cfg), 0600))

	md := &fakeMetadata{hosts: []cluster.HostIdentity{
		{HostID: host1, ListenAddress: net.ParseIP("10.0.0.1"), Datacenter: "DC1", Rack: "rack1"},
		{HostID: host2, ListenAddress: net.ParseIP("10.0.0.2"), Datacenter: "DC2", Rack: "rack1"},
	}}

	env.gopts = &GlobalOptions{
		stdin:  os.Stdin,
		stdout: env.stdout,
		stderr: env.stderr,
		backendTestHook: func() (backend.Backend, error) {
			return env.be, nil
		},
		metadataTestHook: func() (cluster.Metadata, error) {
			env.metadataCalls++
			return md, nil
		},
		resolverTestHook: func(r *cluster.Resolver) {
			r.HostAddrs = func() ([]net.IP, error) { return []net.IP{env.localIP}, nil }
			r.InterfaceAddrs = func(string) ([]net.IP, error) { return nil, nil }
		},
	}

	return env
}

func (env *testEnvironment) run(args ...string) error {
	cmd := newRootCommand(env.gopts)
	cmd.SetArgs(append([]string{"--config", env.cfgFile}, args...))
	return cmd.ExecuteContext(context.TODO())
}

func TestListMe(t *testing.T) {
	env := withTestEnvironment(t)

	rtest.OK(t, env.run("list", "me", "-k", "k1", "-b", backupTimeArg))

	out := env.stdout.String()
	rtest.Equals(t, 12, strings.Count(out, "[keyspace: K1;"), out)
	rtest.Assert(t, strings.Contains(out, "opscenter_adhoc_2019-06-10-17-45-00-UTC/backup.json"), "manifest not printed: %v", out)
	rtest.Assert(t, strings.Contains(env.stderr.String(), "manifest entry 12"), "skipped record not reported: %v", env.stderr.String())
	rtest.Equals(t, 1, env.metadataCalls)
}

func TestListMeOverride(t *testing.T) {
	env := withTestEnvironment(t)

	rtest.OK(t, env.run("list", "me:"+host1, "-k", "K1", "-t", "T2", "-b", backupTimeArg))
	rtest.Equals(t, 6, strings.Count(env.stdout.String(), "table: T2]"))
	rtest.Equals(t, 0, env.metadataCalls)
}

func TestListAll(t *testing.T) {
	env := withTestEnvironment(t)

	rtest.OK(t, env.run("list", "all", "-k", "K1", "-t", "T1", "-b", backupTimeArg))
	rtest.Assert(t, strings.Contains(env.stdout.String(), "6 files found on 2 hosts"), "unexpected output: %v", env.stdout.String())
	rtest.Assert(t, strings.Contains(env.stderr.String(), "skipping host "+host2), "missing warning: %v", env.stderr.String())
}

func TestListDatacenter(t *testing.T) {
	env := withTestEnvironment(t)

	rtest.OK(t, env.run("list", "dc:dc1", "-k", "K1", "-b", backupTimeArg))
	rtest.Assert(t, strings.Contains(env.stdout.String(), "12 files found on 1 hosts"), "unexpected output: %v", env.stdout.String())
	rtest.Assert(t, !strings.Contains(env.stderr.String(), host2), "host of other datacenter listed")
}

func TestListNotFound(t *testing.T) {
	env := withTestEnvironment(t)

	err := env.run("list", "me", "-k", "K1", "-b", "6/10/2019 5:46 PM")
	rtest.ErrorIs(t, err, manifest.ErrNotFound)
	rtest.Equals(t, 11, exitCode(err))
}

func TestListMissingKeyspace(t *testing.T) {
	env := withTestEnvironment(t)

	err := env.run("list", "me", "-b", backupTimeArg)
	rtest.Assert(t, errors.IsFatal(err), "expected fatal error, got %v", err)
}

func TestDownload(t *testing.T) {
	env := withTestEnvironment(t)

	rtest.OK(t, env.run("download", "-k", "K1", "-t", "T1", "-b", backupTimeArg))

	dir := filepath.Join(env.home, "snapshots", host1, "sstables", "K1", "T1")
	entries, err := os.ReadDir(dir)
	rtest.OK(t, err)
	rtest.Equals(t, 6, len(entries))

	buf := rtest.ReadFile(t, filepath.Join(dir, "mc-1-big-Data.db"))
	rtest.Equals(t, host1+"/mc-1-big-Data.db", string(buf))

	rtest.Assert(t, strings.Contains(env.stdout.String(), "6 of 6 files downloaded"), "unexpected output: %v", env.stdout.String())
}

func TestDownloadFlatPositional(t *testing.T) {
	env := withTestEnvironment(t)

	rtest.OK(t, env.run("download", "--host-id", host1, "--no-dir-struct", "--grouping", "positional",
		"--group-size", "4", "--threads", "2", "-k", "K1", "-t", "T2", "-b", backupTimeArg))
	rtest.Equals(t, 0, env.metadataCalls)

	entries, err := os.ReadDir(env.home)
	rtest.OK(t, err)
	rtest.Equals(t, 6, len(entries))
	rtest.Assert(t, strings.Contains(env.stdout.String(), "in 2 groups with 2 workers"), "unexpected output: %v", env.stdout.String())
}

func TestDownloadNoDirStructNeedsTable(t *testing.T) {
	env := withTestEnvironment(t)

	rtest.OK(t, env.run("download", "--no-dir-struct", "-k", "K1", "-b", backupTimeArg))
	rtest.Assert(t, strings.Contains(env.stderr.String(), "--no-dir-struct is ignored"), "missing warning: %v", env.stderr.String())

	_, err := os.Stat(filepath.Join(env.home, "snapshots", host1, "sstables", "K1", "T2", "mc-2-big-Index.db"))
	rtest.OK(t, err)
}

func TestDownloadClear(t *testing.T) {
	env := withTestEnvironment(t)
	rtest.OK(t, os.MkdirAll(env.home, 0755))
	rtest.OK(t, os.WriteFile(filepath.Join(env.home, "stale"), []byte("x"), 0644))

	rtest.OK(t, env.run("download", "--clear", "-k", "K1", "-t", "T1", "-b", backupTimeArg))

	_, err := os.Stat(filepath.Join(env.home, "stale"))
	rtest.Assert(t, errors.Is(err, os.ErrNotExist), "stale file not removed")
}

func TestDownloadResolutionFailure(t *testing.T) {
	env := withTestEnvironment(t)
	env.localIP = net.ParseIP("10.9.9.9")

	err := env.run("download", "-k", "K1", "-b", backupTimeArg)
	rtest.ErrorIs(t, err, cluster.ErrResolution)
	rtest.Equals(t, 10, exitCode(err))
}

func TestDownloadDestinationFile(t *testing.T) {
	env := withTestEnvironment(t)
	rtest.OK(t, os.WriteFile(env.home, []byte("not a dir"), 0644))

	err := env.run("download", "--host-id", host1, "-k", "K1", "-b", backupTimeArg)
	rtest.Assert(t, err != nil, "download into a file succeeded")
}

func TestDownloadPartialFailure(t *testing.T) {
	env := withTestEnvironment(t)
	env.gopts.backendTestHook = func() (backend.Backend, error) {
		return failingBackend{MemoryBackend: env.be, key: "snapshots/" + host1 + "/sstables/mc-1-big-Filter.db"}, nil
	}

	rtest.OK(t, env.run("download", "--host-id", host1, "-k", "K1", "-t", "T1", "-b", backupTimeArg))
	rtest.Assert(t, strings.Contains(env.stdout.String(), "5 of 6 files downloaded"), "unexpected output: %v", env.stdout.String())
	rtest.Assert(t, strings.Contains(env.stdout.String(), ", 1 failed"), "unexpected output: %v", env.stdout.String())
}

var errInjected = errors.New("injected error")

type failingBackend struct {
	*mem.MemoryBackend
	key string
}

func (be failingBackend) Load(ctx context.Context, key string, fn func(rd io.Reader) error) error {
	if key == be.key {
		return errInjected
	}
	return be.MemoryBackend.Load(ctx, key, fn)
}

func (be failingBackend) IsPermanentError(err error) bool {
	return errors.Is(err, errInjected) || be.MemoryBackend.IsPermanentError(err)
}

func TestHosts(t *testing.T) {
	env := withTestEnvironment(t)

	rtest.OK(t, env.run("hosts"))
	out := env.stdout.String()
	rtest.Assert(t, strings.Contains(out, "Cluster Test Cluster, 2 hosts"), "unexpected output: %v", out)
	rtest.Assert(t, strings.Contains(out, "* "+host1), "own host not marked: %v", out)
}

func TestVersion(t *testing.T) {
	gopts := &GlobalOptions{stdout: bytes.NewBuffer(nil), stderr: bytes.NewBuffer(nil)}
	cmd := newRootCommand(gopts)
	cmd.SetArgs([]string{"version"})
	rtest.OK(t, cmd.Execute())
	rtest.Assert(t, strings.HasPrefix(gopts.stdout.(*bytes.Buffer).String(), "opscs3restore "), "unexpected version output")
}

func TestMissingConfig(t *testing.T) {
	gopts := &GlobalOptions{stdout: bytes.NewBuffer(nil), stderr: bytes.NewBuffer(nil)}
	cmd := newRootCommand(gopts)
	cmd.SetArgs([]string{"--config", "", "hosts"})
	err := cmd.Execute()
	rtest.Assert(t, errors.IsFatal(err), "expected fatal error, got %v", err)
}

func TestDownloadFlagDefaults(t *testing.T) {
	var opts DownloadOptions
	fs := pflag.NewFlagSet("download", pflag.ContinueOnError)
	opts.AddFlags(fs)
	rtest.OK(t, fs.Parse(nil))
	rtest.Equals(t, restorer.GroupPositional, opts.Grouping)
	rtest.Equals(t, restorer.DefaultGroupSize, opts.GroupSize)

	// unchanged flags keep the configured values
	cfg := config.Default()
	cfg.DownloadThreads = 8
	rtest.OK(t, config.ApplyFlags(&cfg, fs))
	rtest.Equals(t, 8, cfg.DownloadThreads)
	rtest.Equals(t, 0, cfg.DownloadLimitKB)
}

func TestDownloadFlagsApplyToConfig(t *testing.T) {
	var opts DownloadOptions
	fs := pflag.NewFlagSet("download", pflag.ContinueOnError)
	opts.AddFlags(fs)
	rtest.OK(t, fs.Parse([]string{"--threads", "3", "--limit-download", "512"}))

	cfg := config.Default()
	rtest.OK(t, config.ApplyFlags(&cfg, fs))
	rtest.Equals(t, 3, cfg.DownloadThreads)
	rtest.Equals(t, 512, cfg.DownloadLimitKB)
}

func TestDownloadDefaultGrouping(t *testing.T) {
	env := withTestEnvironment(t)

	rtest.OK(t, env.run("download", "--host-id", host1, "-k", "K1", "-b", backupTimeArg))
	rtest.Assert(t, strings.Contains(env.stdout.String(), "downloading 12 files in 2 groups"), "unexpected output: %v", env.stdout.String())
}
