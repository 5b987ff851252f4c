package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yabinmeng/opscs3restore/internal/catalog"
	"github.com/yabinmeng/opscs3restore/internal/errors"
	"github.com/yabinmeng/opscs3restore/internal/restorer"
	"github.com/yabinmeng/opscs3restore/internal/ui"
	"github.com/yabinmeng/opscs3restore/internal/ui/progress"
)

// DownloadOptions collects all options for the download command.
type DownloadOptions struct {
	HostID      string
	Clear       bool
	NoDirStruct bool
	Grouping    restorer.Grouping
	GroupSize   int
}

func (opts *DownloadOptions) AddFlags(f *pflag.FlagSet) {
	f.StringVar(&opts.HostID, "host-id", "", "use this host `id` instead of resolving it from the cluster")
	f.BoolVar(&opts.Clear, "clear", false, "remove the contents of the download directory first")
	f.BoolVar(&opts.NoDirStruct, "no-dir-struct", false, "store all files directly in the download directory (requires --table)")
	opts.Grouping = restorer.GroupPositional
	f.Var(&opts.Grouping, "grouping", "how files are grouped for download, `mode` positional or fragment")
	f.IntVar(&opts.GroupSize, "group-size", restorer.DefaultGroupSize, "number of files per group for positional grouping")

	// copied into the configuration by flag name, see config.ApplyFlags
	f.Int("threads", restorer.DefaultWorkers, "number of concurrent download `workers`")
	f.Int("limit-download", 0, "limits downloads to a maximum `rate` in KiB/s. (default: unlimited)")
}

func newDownloadCommand(gopts *GlobalOptions) *cobra.Command {
	var opts DownloadOptions

	cmd := &cobra.Command{
		Use:   "download [flags]",
		Short: "Download backed up SSTable files of this node",
		Long: `
The "download" command fetches the SSTable files of the selected keyspace (and
table) from the backup of this node taken at --backup-time. Files are stored
below local_download_home as

    snapshots/<host_id>/sstables/<keyspace>/<table>/<file>

With --no-dir-struct and --table, files are stored directly in
local_download_home instead.

Files that fail to download are reported, the other downloads continue.

EXIT STATUS
===========

Exit status is 0 if the command was successful, even if single files failed.
Exit status is 1 if there was any other error.
Exit status is 10 if the host id of this node could not be determined.
Exit status is 11 if no backup exists for this node at the given time.
Exit status is 12 if the download directory cannot be used.
Exit status is 13 if the cluster could not be reached.
Exit status is 14 if no S3 credentials were found.
Exit status is 130 if the command was interrupted.
`,
		DisableAutoGenTag: true,
		Args:              cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDownload(cmd.Context(), opts, gopts, gopts.printer())
		},
	}

	opts.AddFlags(cmd.Flags())
	return cmd
}

func runDownload(ctx context.Context, opts DownloadOptions, gopts *GlobalOptions, printer progress.Printer) error {
	crit, backupTime, err := gopts.selection()
	if err != nil {
		return err
	}

	if opts.GroupSize <= 0 {
		return errors.Fatalf("invalid group size %d", opts.GroupSize)
	}

	flatten := opts.NoDirStruct
	if flatten && crit.Table == "" {
		printer.E("WARN: --no-dir-struct is ignored without --table")
		flatten = false
	}

	be, err := OpenBackend(ctx, gopts, printer)
	if err != nil {
		return err
	}
	defer func() { _ = be.Close() }()

	hostID, err := resolveHost(ctx, gopts, opts.HostID)
	if err != nil {
		return err
	}

	idx, key, err := gopts.newLocator(be).Fetch(ctx, be, hostID, backupTime, gopts.cfg.ManifestField)
	if err != nil {
		return err
	}
	printer.P("Host %v, manifest %v", hostID, key)
	for _, skipped := range idx.Skipped {
		printer.E("WARN: %v", skipped)
	}

	res := restorer.New(be, gopts.cfg.DownloadHome, restorer.Options{
		Workers:    gopts.cfg.DownloadThreads,
		GroupSize:  opts.GroupSize,
		Grouping:   opts.Grouping,
		BasePrefix: gopts.cfg.SnapshotBasePrefix,
		Flatten:    flatten,
		Clear:      opts.Clear,
		CheckSize:  gopts.cfg.FileSizeCheck,
	}, printer)

	if err := res.PrepareDestination(); err != nil {
		return err
	}

	matches, err := gopts.newFilter(be).Run(ctx, hostID, idx, crit, func(m catalog.Match) error {
		printer.P("  - [%v] %v%v [keyspace: %v; table: %v]",
			gopts.cfg.S3Bucket, m.Object.Key, sizeSuffix(gopts, m), m.Record.Keyspace, m.Record.Table)
		return nil
	})
	if errors.Is(err, catalog.ErrEmptyIndex) {
		printer.E("WARN: %v for host %v", err, hostID)
		return nil
	}
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		printer.P("no files found for keyspace %v table %q", crit.Keyspace, crit.Table)
		return nil
	}

	groups := res.Options().Groups(matches)
	printer.P("downloading %d files in %d groups with %d workers", len(matches), len(groups), res.Options().Workers)

	summary, err := res.Run(ctx, groups)
	printer.P("%d of %d files downloaded (%v) in %v, %d failed",
		summary.Downloaded, summary.Total(), ui.FormatBytes(summary.Bytes),
		ui.FormatDuration(summary.Duration), summary.Failed)
	if summary.SizeMismatch > 0 {
		printer.E("WARN: %d files differ in size from the listing", summary.SizeMismatch)
	}
	for _, key := range summary.FailedObjects {
		printer.V("failed: %v", key)
	}

	return err
}
