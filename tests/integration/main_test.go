package integration

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"
)

var (
	testDB   *TestDB
	setupErr error
)

func TestMain(m *testing.M) {
	flag.Parse()
	if !testing.Short() {
		testDB, setupErr = startDatabase()
		if setupErr != nil {
			fmt.Fprintf(os.Stderr, "integration database unavailable: %v\n", setupErr)
		}
	}

	code := m.Run()

	if testDB != nil {
		_ = testDB.Teardown(context.Background())
	}
	os.Exit(code)
}

// startDatabase recovers the panic testcontainers raises when no Docker host
// can be found.
func startDatabase() (db *TestDB, err error) {
	defer func() {
		if r := recover(); r != nil {
			db, err = nil, fmt.Errorf("docker unavailable: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return SetupTestDatabase(ctx)
}

// requireDB skips the test when no database container is available and
// otherwise returns it with all tables emptied.
func requireDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if testDB == nil {
		t.Skipf("integration database unavailable: %v", setupErr)
	}
	if err := testDB.CleanupTables(context.Background()); err != nil {
		t.Fatalf("failed to clean tables: %v", err)
	}
	return testDB
}
