package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yabinmeng/opscs3restore/internal/errors"
	rtest "github.com/yabinmeng/opscs3restore/internal/test"
)

func TestParseScope(t *testing.T) {
	for _, test := range []struct {
		arg  string
		want listScope
	}{
		{"all", listScope{kind: scopeAll}},
		{"ALL", listScope{kind: scopeAll}},
		{"dc:DC1", listScope{kind: scopeDatacenter, datacenter: "DC1"}},
		{"me", listScope{kind: scopeMe}},
		{"me:6e2c7a3b-5a1c-4d8e-9a43-1f0e2d3c4b5a", listScope{kind: scopeMe, hostID: "6e2c7a3b-5a1c-4d8e-9a43-1f0e2d3c4b5a"}},
	} {
		t.Run(test.arg, func(t *testing.T) {
			scope, err := parseScope(test.arg)
			rtest.OK(t, err)
			if diff := cmp.Diff(test.want, scope, cmp.AllowUnexported(listScope{})); diff != "" {
				t.Errorf("scope differs (-want +got):\n%s", diff)
			}
			rtest.Equals(t, test.arg != "ALL", scope.String() == test.arg)
		})
	}
}

func TestParseScopeInvalid(t *testing.T) {
	for _, arg := range []string{"", "dc", "dc:", "me:", "all:x", "host:1", "everything"} {
		t.Run(arg, func(t *testing.T) {
			_, err := parseScope(arg)
			rtest.Assert(t, errors.IsFatal(err), "expected fatal error for %q, got %v", arg, err)
		})
	}
}
