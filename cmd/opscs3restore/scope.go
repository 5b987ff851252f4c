package main

import (
	"strings"

	"github.com/yabinmeng/opscs3restore/internal/errors"
)

type scopeKind int

const (
	scopeAll scopeKind = iota
	scopeDatacenter
	scopeMe
)

// listScope selects the hosts the list command works on.
type listScope struct {
	kind       scopeKind
	datacenter string
	hostID     string
}

func (s listScope) String() string {
	switch s.kind {
	case scopeDatacenter:
		return "dc:" + s.datacenter
	case scopeMe:
		if s.hostID != "" {
			return "me:" + s.hostID
		}
		return "me"
	default:
		return "all"
	}
}

// parseScope parses "all", "dc:<name>", "me" or "me:<host_id>".
func parseScope(s string) (listScope, error) {
	name, arg, hasArg := strings.Cut(s, ":")

	switch strings.ToLower(name) {
	case "all":
		if hasArg {
			break
		}
		return listScope{kind: scopeAll}, nil
	case "dc":
		if arg == "" {
			return listScope{}, errors.Fatal("missing datacenter name, use dc:<name>")
		}
		return listScope{kind: scopeDatacenter, datacenter: arg}, nil
	case "me":
		if hasArg && arg == "" {
			return listScope{}, errors.Fatal("missing host id, use me:<host_id>")
		}
		return listScope{kind: scopeMe, hostID: arg}, nil
	}

	return listScope{}, errors.Fatalf("invalid scope %q, use all, dc:<name> or me[:<host_id>]", s)
}
