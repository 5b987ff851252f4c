// Package test contains a test suite for backends.
//
// # Overview
//
// For the test suite to work a few functions need to be implemented to create
// a new config, open a backend, seed it with objects and run cleanup tasks
// afterwards. The Suite struct has fields for each function. Backends are
// read-only, so seeding happens out of band (directly in memory for the mem
// backend, through a separate client for S3).
//
// # Example
//
// Assuming a *Suite is returned by newTestSuite(), the tests can be run like
// this:
//
//	func TestSuiteBackendMem(t *testing.T) {
//		newTestSuite(t).RunTests(t)
//	}
//
// The functions are run in alphabetical order.
//
// # Add new tests
//
// A new test can be added by implementing a method on *Suite with the name
// starting with "Test" and a single *testing.T parameter.
package test
