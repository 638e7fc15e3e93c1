package fabric_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain runs every test in the fabric_test package and checks for
// goroutine leaks afterward. Any goroutine still running (e.g. a forgotten
// Endpoint.Stop or Switch.Run) fails the suite.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
