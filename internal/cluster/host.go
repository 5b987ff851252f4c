// Package cluster resolves which DSE host the tool runs for. Host metadata is
// read from the cluster's system tables; the local node is identified by
// comparing its IP address against each host's listen and broadcast
// addresses.
package cluster

import (
	"context"
	"net"
	"sort"
	"strings"

	"github.com/yabinmeng/opscs3restore/internal/errors"
)

// ErrUnavailable is returned when the cluster metadata cannot be read.
var ErrUnavailable = errors.New("cluster metadata unavailable")

// HostIdentity describes one node of the cluster.
type HostIdentity struct {
	HostID           string
	ListenAddress    net.IP
	BroadcastAddress net.IP
	Datacenter       string
	Rack             string
}

// HasAddress reports whether ip is the host's listen or broadcast address.
func (h HostIdentity) HasAddress(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return (h.ListenAddress != nil && h.ListenAddress.Equal(ip)) ||
		(h.BroadcastAddress != nil && h.BroadcastAddress.Equal(ip))
}

// Metadata is the source of host information for a cluster.
type Metadata interface {
	// Hosts returns all hosts of the cluster.
	Hosts(ctx context.Context) ([]HostIdentity, error)
	// ClusterName returns the configured name of the cluster.
	ClusterName(ctx context.Context) (string, error)
	Close() error
}

// InDatacenter returns the hosts of datacenter dc, compared
// case-insensitively. An empty dc selects all hosts.
func InDatacenter(hosts []HostIdentity, dc string) []HostIdentity {
	if dc == "" {
		return hosts
	}

	var res []HostIdentity
	for _, h := range hosts {
		if strings.EqualFold(h.Datacenter, dc) {
			res = append(res, h)
		}
	}
	return res
}

// SortHosts orders hosts by datacenter, rack and host id.
func SortHosts(hosts []HostIdentity) {
	sort.SliceStable(hosts, func(i, j int) bool {
		a, b := hosts[i], hosts[j]
		if a.Datacenter != b.Datacenter {
			return a.Datacenter < b.Datacenter
		}
		if a.Rack != b.Rack {
			return a.Rack < b.Rack
		}
		return a.HostID < b.HostID
	})
}
