package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/studiosync/pkg/db"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	ups, downs := 0, 0
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected paired migrations, got %d up and %d down", ups, downs)
	}
}

func TestApplyAutoMigratesSQLite(t *testing.T) {
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := Apply(conn); err != nil {
		t.Fatalf("apply: %v", err)
	}
	for _, table := range []string{"auto_renews", "orders", "registrations", "customers", "revenue_category_totals", "watermarks", "import_runs"} {
		if !conn.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
}
