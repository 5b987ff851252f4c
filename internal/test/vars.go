package test

import (
	"fmt"
	"os"
	"strings"
	"testing"
)

var (
	TestCleanupTempDirs         = getBoolVar("OPSCS3RESTORE_TEST_CLEANUP", true)
	TestTempDir                 = getStringVar("OPSCS3RESTORE_TEST_TMPDIR", "")
	RunIntegrationTest          = getBoolVar("OPSCS3RESTORE_TEST_INTEGRATION", true)
	TestS3Server                = getStringVar("OPSCS3RESTORE_TEST_S3_SERVER", "")
	TestCQLContactPoint         = getStringVar("OPSCS3RESTORE_TEST_CQL_CONTACT_POINT", "")
	TestIntegrationDisallowSkip = getStringVar("OPSCS3RESTORE_TEST_DISALLOW_SKIP", "")
)

func getStringVar(name, defaultValue string) string {
	if e := os.Getenv(name); e != "" {
		return e
	}

	return defaultValue
}

func getBoolVar(name string, defaultValue bool) bool {
	if e := os.Getenv(name); e != "" {
		switch e {
		case "1", "true":
			return true
		case "0", "false":
			return false
		default:
			fmt.Fprintf(os.Stderr, "invalid value for variable %q, using default\n", name)
		}
	}

	return defaultValue
}

// SkipDisallowed fails the test if it needs to run. The environment
// variable OPSCS3RESTORE_TEST_DISALLOW_SKIP contains a comma-separated list
// of test names that must be run. If name is in this list, the test is
// marked as failed.
func SkipDisallowed(t testing.TB, name string) {
	for _, s := range strings.Split(TestIntegrationDisallowSkip, ",") {
		if s == name {
			t.Fatalf("test %v is in list of tests that need to run ($OPSCS3RESTORE_TEST_DISALLOW_SKIP)", name)
		}
	}
}
