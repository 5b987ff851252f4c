package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/yabinmeng/opscs3restore/internal/backend/s3"
	"github.com/yabinmeng/opscs3restore/internal/cluster"
	"github.com/yabinmeng/opscs3restore/internal/debug"
	"github.com/yabinmeng/opscs3restore/internal/errors"
	"github.com/yabinmeng/opscs3restore/internal/manifest"
	"github.com/yabinmeng/opscs3restore/internal/restorer"
)

func init() {
	// don't import `go.uber.org/automaxprocs` to disable the log output
	_, _ = maxprocs.Set()
}

func newRootCommand(gopts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opscs3restore",
		Short: "Restore OpsCenter S3 backups of DSE SSTables",
		Long: `
opscs3restore lists and downloads the SSTable files that the OpsCenter backup
service stored in S3 for a DSE cluster. Files are selected by keyspace, table
and backup time and placed in a directory tree that can be used to restore
the data.
`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		DisableAutoGenTag: true,

		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			return gopts.PreRun(c, needsConfig(c.Name()))
		},
	}

	gopts.AddFlags(cmd.PersistentFlags())

	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(
		newListCommand(gopts),
		newDownloadCommand(gopts),
		newHostsCommand(gopts),
		newVersionCommand(gopts),
	)

	return cmd
}

func needsConfig(cmd string) bool {
	switch cmd {
	case "help", "version", "__complete":
		return false
	default:
		return true
	}
}

// exitCode maps an error returned by a command to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, cluster.ErrResolution):
		return 10
	case errors.Is(err, manifest.ErrNotFound):
		return 11
	case errors.Is(err, restorer.ErrDestination):
		return 12
	case errors.Is(err, cluster.ErrUnavailable):
		return 13
	case errors.Is(err, s3.ErrNoCredentials):
		return 14
	default:
		return 1
	}
}

func exitMessage(err error) string {
	switch {
	case errors.IsFatal(err):
		return err.Error()
	case exitCode(err) != 1:
		return fmt.Sprintf("Fatal: %v", err)
	default:
		return fmt.Sprintf("%+v", err)
	}
}

func main() {
	// install custom global logger into a buffer, if an error occurs
	// we can show the logs
	logBuffer := bytes.NewBuffer(nil)
	log.SetOutput(logBuffer)

	debug.Log("main %#v", os.Args)
	debug.Log("opscs3restore %s compiled with %v on %v/%v",
		version, runtime.Version(), runtime.GOOS, runtime.GOARCH)

	gopts := newGlobalOptions()
	ctx := createGlobalContext(gopts)
	err := newRootCommand(gopts).ExecuteContext(ctx)
	if err == nil {
		err = ctx.Err()
	}

	code := exitCode(err)
	if code != 0 {
		msg := exitMessage(err)
		if code == 1 && !errors.IsFatal(err) && logBuffer.Len() > 0 {
			msg += "\nalso, the following messages were logged by a library:\n"
			sc := bufio.NewScanner(logBuffer)
			for sc.Scan() {
				msg += fmt.Sprintln(sc.Text())
			}
		}
		_, _ = fmt.Fprintln(gopts.stderr, msg)
	}
	Exit(code)
}
