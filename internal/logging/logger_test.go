// Package logging includes tests for the logger builders.
package logging

import "testing"

// TestNewDevelopmentLogger confirms the development logger builds, is
// named, and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger.Name() != "tracker" {
		t.Fatalf("logger name = %q, want tracker", logger.Name())
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if logger.Name() != "tracker" {
		t.Fatalf("logger name = %q, want tracker", logger.Name())
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}
