package store

import (
	"testing"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	dir := migrationsDir()
	ups, err := migrationFiles(dir, "up")
	if err != nil {
		t.Fatalf("read up migrations: %v", err)
	}
	downs, err := migrationFiles(dir, "down")
	if err != nil {
		t.Fatalf("read down migrations: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no migrations discovered")
	}
	if len(ups) != len(downs) {
		t.Fatalf("found %d up and %d down migrations", len(ups), len(downs))
	}

	seen := map[string]bool{}
	for i := range ups {
		if seen[ups[i].version] {
			t.Fatalf("duplicate up migration for version %s", ups[i].version)
		}
		seen[ups[i].version] = true
		if ups[i].version != downs[i].version {
			t.Fatalf("version %s has no matching down file", ups[i].version)
		}
		if i > 0 && ups[i-1].version >= ups[i].version {
			t.Fatalf("migrations out of order: %s before %s", ups[i-1].name, ups[i].name)
		}
	}
}
