// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package postgres

import (
	"context"
	"os"
	"testing"
)

// TestDatabaseURLEnv names the environment variable that points database
// tests at a disposable PostgreSQL instance with the vector extension
// available. Tests that need a live database skip when it is unset.
const TestDatabaseURLEnv = "ENGRAM_TEST_DATABASE_URL"

// NewTestBackend opens a backend against the test database and runs all
// migrations forward. It skips the calling test when no test database is
// configured. The backend is closed and the schema torn down when the test
// finishes.
func NewTestBackend(t *testing.T) *Backend {
	t.Helper()

	url := os.Getenv(TestDatabaseURLEnv)
	if url == "" {
		t.Skipf("%s not set, skipping database test", TestDatabaseURLEnv)
	}

	backend, err := NewBackend(NewConfig(WithURL(url)))
	if err != nil {
		t.Fatalf("test backend: %v", err)
	}

	migrator, err := NewMigrator(backend, DefaultMigrations())
	if err != nil {
		backend.Close()
		t.Fatalf("test migrator: %v", err)
	}
	if _, err := migrator.Up(context.Background()); err != nil {
		backend.Close()
		t.Fatalf("migrating test database: %v", err)
	}

	t.Cleanup(func() {
		// Revert to an empty schema so reruns start clean. The extension
		// migration is forward-only and stays in place.
		if _, err := migrator.Down(context.Background(), 1); err != nil {
			t.Logf("reverting test schema: %v", err)
		}
		backend.Close()
	})
	return backend
}
