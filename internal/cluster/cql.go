package cluster

import (
	"context"
	"net"
	"time"

	"github.com/gocql/gocql"
	"github.com/yabinmeng/opscs3restore/internal/debug"
	"github.com/yabinmeng/opscs3restore/internal/errors"
)

// CQLConfig describes how to reach the cluster.
type CQLConfig struct {
	ContactPoints []string
	Port          int

	Username string
	Password string

	SSL              bool
	CAFile           string
	CertFile         string
	KeyFile          string
	HostVerification bool

	Timeout time.Duration
}

// UnavailableError wraps the driver error when the cluster cannot be
// queried. It matches ErrUnavailable.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return ErrUnavailable.Error() + ": " + e.Op + ": " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}

// CQLMetadata reads host information from the system tables of a DSE or
// Cassandra cluster.
type CQLMetadata struct {
	session *gocql.Session
}

var _ Metadata = &CQLMetadata{}

func clusterConfig(cfg CQLConfig) (*gocql.ClusterConfig, error) {
	if len(cfg.ContactPoints) == 0 {
		return nil, errors.New("no contact point configured")
	}

	cc := gocql.NewCluster(cfg.ContactPoints...)
	if cfg.Port > 0 {
		cc.Port = cfg.Port
	}
	// system tables are node local
	cc.Consistency = gocql.One
	if cfg.Timeout > 0 {
		cc.Timeout = cfg.Timeout
		cc.ConnectTimeout = cfg.Timeout
	}

	if cfg.Username != "" || cfg.Password != "" {
		if cfg.Username == "" || cfg.Password == "" {
			return nil, errors.New("user authentication requires both user name and password")
		}
		cc.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	if cfg.SSL {
		cc.SslOpts = &gocql.SslOptions{
			CaPath:                 cfg.CAFile,
			CertPath:               cfg.CertFile,
			KeyPath:                cfg.KeyFile,
			EnableHostVerification: cfg.HostVerification,
		}
	}

	return cc, nil
}

// Connect opens a session against the contact points in cfg.
func Connect(_ context.Context, cfg CQLConfig) (*CQLMetadata, error) {
	cc, err := clusterConfig(cfg)
	if err != nil {
		return nil, err
	}

	debug.Log("connecting to %v port %v (ssl %v)", cfg.ContactPoints, cc.Port, cfg.SSL)

	session, err := cc.CreateSession()
	if err != nil {
		return nil, &UnavailableError{Op: "connect", Err: err}
	}

	return &CQLMetadata{session: session}, nil
}

// Hosts returns the local node followed by its peers.
func (m *CQLMetadata) Hosts(ctx context.Context) ([]HostIdentity, error) {
	var hosts []HostIdentity

	var (
		hostID              gocql.UUID
		listen, broadcast   net.IP
		datacenter, rackStr string
	)

	iter := m.session.Query(`SELECT host_id, listen_address, broadcast_address, data_center, rack FROM system.local`).
		WithContext(ctx).Iter()
	for iter.Scan(&hostID, &listen, &broadcast, &datacenter, &rackStr) {
		hosts = append(hosts, HostIdentity{
			HostID:           hostID.String(),
			ListenAddress:    listen,
			BroadcastAddress: broadcast,
			Datacenter:       datacenter,
			Rack:             rackStr,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, &UnavailableError{Op: "query system.local", Err: err}
	}

	iter = m.session.Query(`SELECT host_id, preferred_ip, peer, data_center, rack FROM system.peers`).
		WithContext(ctx).Iter()
	for {
		// scan into fresh values, null columns leave the target untouched
		var (
			peerID          gocql.UUID
			preferred, peer net.IP
			dc, rack        string
		)
		if !iter.Scan(&peerID, &preferred, &peer, &dc, &rack) {
			break
		}
		hosts = append(hosts, HostIdentity{
			HostID:           peerID.String(),
			ListenAddress:    preferred,
			BroadcastAddress: peer,
			Datacenter:       dc,
			Rack:             rack,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, &UnavailableError{Op: "query system.peers", Err: err}
	}

	debug.Log("found %d hosts", len(hosts))
	return hosts, nil
}

// ClusterName returns the name of the cluster.
func (m *CQLMetadata) ClusterName(ctx context.Context) (string, error) {
	var name string
	err := m.session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&name)
	if err != nil {
		return "", &UnavailableError{Op: "query cluster name", Err: err}
	}
	return name, nil
}

// Close ends the session.
func (m *CQLMetadata) Close() error {
	m.session.Close()
	return nil
}
