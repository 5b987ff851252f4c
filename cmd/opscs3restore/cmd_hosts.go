package main

import (
	"context"
	"net"

	"github.com/spf13/cobra"

	"github.com/yabinmeng/opscs3restore/internal/cluster"
)

func newHostsCommand(gopts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "List the hosts of the cluster",
		Long: `
The "hosts" command prints the host id, addresses, datacenter and rack of
every host of the cluster, and marks the host this tool runs on.

EXIT STATUS
===========

Exit status is 0 if the command was successful.
Exit status is 1 if there was any error.
Exit status is 13 if the cluster could not be reached.
`,
		DisableAutoGenTag: true,
		Args:              cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHosts(cmd.Context(), gopts)
		},
	}
}

func runHosts(ctx context.Context, gopts *GlobalOptions) error {
	md, err := OpenMetadata(ctx, gopts)
	if err != nil {
		return err
	}
	defer func() { _ = md.Close() }()

	name, err := md.ClusterName(ctx)
	if err != nil {
		return err
	}

	hosts, err := md.Hosts(ctx)
	if err != nil {
		return err
	}
	cluster.SortHosts(hosts)

	r := cluster.NewResolver(gopts.cfg.IPMatchingNIC)
	if gopts.resolverTestHook != nil {
		gopts.resolverTestHook(r)
	}
	self, selfErr := cluster.Match(localIP(r), hosts)

	gopts.Printf("Cluster %v, %d hosts\n", name, len(hosts))
	gopts.Printf("  %-36s  %-15s  %-15s  %-10s  %-10s\n", "Host ID", "Listen", "Broadcast", "DC", "Rack")
	for _, h := range hosts {
		mark := " "
		if selfErr == nil && h.HostID == self.HostID {
			mark = "*"
		}
		gopts.Printf("%s %-36s  %-15s  %-15s  %-10s  %-10s\n",
			mark, h.HostID, ipString(h.ListenAddress), ipString(h.BroadcastAddress), h.Datacenter, h.Rack)
	}
	return nil
}

func localIP(r *cluster.Resolver) net.IP {
	ip, err := r.LocalIP()
	if err != nil {
		return nil
	}
	return ip
}

func ipString(ip net.IP) string {
	if ip == nil {
		return "-"
	}
	return ip.String()
}
