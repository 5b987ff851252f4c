package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/yabinmeng/opscs3restore/internal/backend"
	"github.com/yabinmeng/opscs3restore/internal/catalog"
	"github.com/yabinmeng/opscs3restore/internal/cluster"
	"github.com/yabinmeng/opscs3restore/internal/debug"
	"github.com/yabinmeng/opscs3restore/internal/errors"
	"github.com/yabinmeng/opscs3restore/internal/manifest"
	"github.com/yabinmeng/opscs3restore/internal/ui"
	"github.com/yabinmeng/opscs3restore/internal/ui/progress"
)

func newListCommand(gopts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [flags] all|dc:<name>|me[:<host_id>]",
		Short: "List backed up SSTable files",
		Long: `
The "list" command prints the SSTable files of the selected keyspace (and
table) that belong to the backup taken at --backup-time.

The scope selects the hosts: "all" lists every host of the cluster,
"dc:<name>" the hosts of one datacenter and "me" this node. The host id of
this node can be given as "me:<host_id>", in which case the cluster is not
contacted.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
Exit status is 10 if the host id of this node could not be determined.
Exit status is 11 if no backup exists for this node at the given time.
Exit status is 13 if the cluster could not be reached.
Exit status is 14 if no S3 credentials were found.
Exit status is 130 if the command was interrupted.
`,
		DisableAutoGenTag: true,
		Args:              cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := parseScope(args[0])
			if err != nil {
				return err
			}
			return runList(cmd.Context(), gopts, scope, gopts.printer())
		},
	}
	return cmd
}

func runList(ctx context.Context, gopts *GlobalOptions, scope listScope, printer progress.Printer) error {
	crit, backupTime, err := gopts.selection()
	if err != nil {
		return err
	}

	be, err := OpenBackend(ctx, gopts, printer)
	if err != nil {
		return err
	}
	defer func() { _ = be.Close() }()

	if scope.kind == scopeMe {
		hostID, err := resolveHost(ctx, gopts, scope.hostID)
		if err != nil {
			return err
		}
		_, err = listHost(ctx, gopts, be, hostID, crit, backupTime, printer)
		return err
	}

	md, err := OpenMetadata(ctx, gopts)
	if err != nil {
		return err
	}
	defer func() { _ = md.Close() }()

	hosts, err := md.Hosts(ctx)
	if err != nil {
		return err
	}
	hosts = cluster.InDatacenter(hosts, scope.datacenter)
	if len(hosts) == 0 {
		printer.E("no hosts found for scope %v", scope)
		return nil
	}
	cluster.SortHosts(hosts)

	var total int
	for _, h := range hosts {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := listHost(ctx, gopts, be, h.HostID, crit, backupTime, printer)
		var perr *manifest.ParseError
		switch {
		case errors.Is(err, manifest.ErrNotFound), errors.As(err, &perr):
			printer.E("WARN: skipping host %v: %v", h.HostID, err)
			continue
		case err != nil:
			return err
		}
		total += n
	}

	printer.P("%d files found on %d hosts", total, len(hosts))
	return nil
}

// listHost prints the matching files of one host and returns their number.
func listHost(ctx context.Context, gopts *GlobalOptions, be backend.Backend, hostID string,
	crit catalog.Criteria, backupTime time.Time, printer progress.Printer) (int, error) {

	idx, key, err := gopts.newLocator(be).Fetch(ctx, be, hostID, backupTime, gopts.cfg.ManifestField)
	if err != nil {
		return 0, err
	}

	printer.P("Host %v, manifest %v", hostID, key)
	for _, skipped := range idx.Skipped {
		printer.E("WARN: %v", skipped)
	}

	matches, err := gopts.newFilter(be).Run(ctx, hostID, idx, crit, func(m catalog.Match) error {
		printer.P("  - [%v] %v%v [keyspace: %v; table: %v]",
			gopts.cfg.S3Bucket, m.Object.Key, sizeSuffix(gopts, m), m.Record.Keyspace, m.Record.Table)
		return nil
	})
	if errors.Is(err, catalog.ErrEmptyIndex) {
		printer.E("WARN: %v for host %v", err, hostID)
		return 0, nil
	}
	if err != nil {
		return len(matches), err
	}

	debug.Log("%d matches for %v on %v", len(matches), crit, hostID)
	if len(matches) == 0 {
		printer.P("  no files found for keyspace %v table %q", crit.Keyspace, crit.Table)
	}
	return len(matches), nil
}

func sizeSuffix(gopts *GlobalOptions, m catalog.Match) string {
	if !gopts.cfg.FileSizeCheck {
		return ""
	}
	return " (size = " + ui.FormatBytes(uint64(max(m.Object.Size, 0))) + ")"
}
