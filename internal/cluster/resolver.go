package cluster

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yabinmeng/opscs3restore/internal/debug"
	"github.com/yabinmeng/opscs3restore/internal/errors"
)

// ErrResolution is the cause of every *ResolutionError.
var ErrResolution = errors.New("unable to resolve host id")

// ResolutionError is returned when the local node cannot be mapped to
// exactly one cluster host.
type ResolutionError struct {
	Interface string
	LocalIP   net.IP
	// Matches holds the ids of all hosts that matched, if more than one did.
	Matches []string
	Reason  string
}

func (e *ResolutionError) Error() string {
	ip := "<none>"
	if e.LocalIP != nil {
		ip = e.LocalIP.String()
	}

	msg := fmt.Sprintf("%v: %s (interface %q, local IP %s)", ErrResolution, e.Reason, e.Interface, ip)
	if len(e.Matches) > 0 {
		msg += ", matching hosts: " + strings.Join(e.Matches, ", ")
	}
	return msg
}

func (e *ResolutionError) Unwrap() error {
	return ErrResolution
}

// Resolver determines the host id of the node the tool runs on.
type Resolver struct {
	// Interface is consulted when the hostname resolves to a loopback address.
	Interface string

	// HostAddrs returns the addresses the local hostname resolves to.
	HostAddrs func() ([]net.IP, error)
	// InterfaceAddrs returns the addresses bound to the named interface.
	InterfaceAddrs func(name string) ([]net.IP, error)
}

// NewResolver returns a Resolver that uses the system resolver and the
// addresses of interface nic.
func NewResolver(nic string) *Resolver {
	return &Resolver{
		Interface:      nic,
		HostAddrs:      hostAddrs,
		InterfaceAddrs: interfaceAddrs,
	}
}

func hostAddrs() ([]net.IP, error) {
	name, err := os.Hostname()
	if err != nil {
		return nil, errors.Wrap(err, "Hostname")
	}

	addrs, err := net.LookupIP(name)
	if err != nil {
		return nil, errors.Wrapf(err, "LookupIP(%v)", name)
	}
	return addrs, nil
}

func interfaceAddrs(name string) ([]net.IP, error) {
	nic, err := net.InterfaceByName(name)
	if err != nil {
		return nil, errors.Wrapf(err, "InterfaceByName(%v)", name)
	}

	addrs, err := nic.Addrs()
	if err != nil {
		return nil, errors.Wrapf(err, "Addrs(%v)", name)
	}

	var res []net.IP
	for _, addr := range addrs {
		switch a := addr.(type) {
		case *net.IPNet:
			res = append(res, a.IP)
		case *net.IPAddr:
			res = append(res, a.IP)
		}
	}
	return res, nil
}

// firstUsable returns the first non-loopback address, preferring IPv4.
func firstUsable(addrs []net.IP) net.IP {
	var v6 net.IP
	for _, ip := range addrs {
		if ip == nil || ip.IsLoopback() || ip.IsUnspecified() {
			continue
		}
		if ip.To4() != nil {
			return ip
		}
		if v6 == nil && !ip.IsLinkLocalUnicast() {
			v6 = ip
		}
	}
	return v6
}

// LocalIP returns the non-loopback address of this node. The addresses of
// the hostname are tried first, then those of the configured interface.
func (r *Resolver) LocalIP() (net.IP, error) {
	if r.HostAddrs != nil {
		addrs, err := r.HostAddrs()
		if err != nil {
			debug.Log("host addresses: %v", err)
		}
		if ip := firstUsable(addrs); ip != nil {
			return ip, nil
		}
	}

	if r.Interface == "" || r.InterfaceAddrs == nil {
		return nil, &ResolutionError{Reason: "no non-loopback local IP address found"}
	}

	addrs, err := r.InterfaceAddrs(r.Interface)
	if err != nil {
		debug.Log("interface addresses: %v", err)
		return nil, &ResolutionError{Interface: r.Interface, Reason: err.Error()}
	}

	ip := firstUsable(addrs)
	if ip == nil {
		return nil, &ResolutionError{Interface: r.Interface, Reason: "no non-loopback local IP address found"}
	}
	return ip, nil
}

// Match returns the single host that has ip as its listen or broadcast
// address. Zero or multiple matching hosts is an error.
func Match(ip net.IP, hosts []HostIdentity) (HostIdentity, error) {
	var found []HostIdentity
	for _, h := range hosts {
		if h.HasAddress(ip) {
			found = append(found, h)
		}
	}

	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return HostIdentity{}, &ResolutionError{LocalIP: ip, Reason: "no cluster host has this address"}
	default:
		ids := make([]string, 0, len(found))
		for _, h := range found {
			ids = append(ids, h.HostID)
		}
		return HostIdentity{}, &ResolutionError{LocalIP: ip, Matches: ids, Reason: "more than one cluster host has this address"}
	}
}

// Resolve returns the host id of this node. A non-empty override is returned
// verbatim without consulting md.
func (r *Resolver) Resolve(ctx context.Context, md Metadata, override string) (string, error) {
	if override != "" {
		debug.Log("using host id override %v", override)
		return override, nil
	}

	ip, err := r.LocalIP()
	if err != nil {
		return "", err
	}

	hosts, err := md.Hosts(ctx)
	if err != nil {
		return "", err
	}

	h, err := Match(ip, hosts)
	if err != nil {
		var rerr *ResolutionError
		if errors.As(err, &rerr) {
			rerr.Interface = r.Interface
		}
		return "", err
	}

	debug.Log("local IP %v belongs to host %v", ip, h.HostID)
	return h.HostID, nil
}
