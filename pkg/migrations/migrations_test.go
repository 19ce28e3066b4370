package migrations

import (
	"context"
	"testing"

	"github.com/solfixes/solfixes/pkg/addrstore"
	"github.com/solfixes/solfixes/pkg/migrations/addrdb"
	mghelper "github.com/solfixes/solfixes/pkg/pgutil"
	"github.com/uptrace/bun/migrate"
)

func TestAddrDBMigrations_Apply(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, addrdb.Migrations)

	// Initialize migration system
	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	// Run all migrations up
	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected migrations to run, but none were applied")
	}

	// Verify all expected tables exist
	expectedTables := []string{
		"deployment_address_details",
		"bun_migrations",
	}

	for _, table := range expectedTables {
		mghelper.AssertTableExists(t, db, table)
	}

	// Verify index used by name lookups exists
	mghelper.AssertIndexExists(t, db, "idx_deployment_address_details_contract_name")
}

func TestMigrations_Idempotency(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, addrdb.Migrations)

	// Initialize
	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	// Run migrations first time
	_, err = migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("First Migrate() failed: %v", err)
	}

	// Run migrations second time - should not fail
	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Second Migrate() failed: %v", err)
	}

	// Should return zero group (no new migrations)
	if !group.IsZero() {
		t.Error("Expected no new migrations on second run")
	}

	// Verify tables still exist
	mghelper.AssertTableExists(t, db, "deployment_address_details")
}

func TestMigrations_Rollback(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, addrdb.Migrations)

	// Initialize
	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	// Run migrations up
	_, err = migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	// Verify tables exist
	mghelper.AssertTableExists(t, db, "deployment_address_details")

	// Rollback last migration group (all migrations run in one group by Migrate())
	group, err := migrator.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected rollback to process a migration")
	}

	// Verify all tables are dropped (entire migration group is rolled back)
	mghelper.AssertTableNotExists(t, db, "deployment_address_details")
}

func TestUniqueAddressConstraint_Applied(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, addrdb.Migrations)

	// Initialize and run migrations
	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	_, err = migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	first := &addrstore.DeploymentAddressDao{
		DeploymentAddress: "0x1234567890123456789012345678901234567890",
		ContractName:      "Vault",
		CompilerVersion:   "0.4.24",
	}
	_, err = db.NewInsert().Model(first).Exec(ctx)
	if err != nil {
		t.Fatalf("Failed to insert first row: %v", err)
	}

	// A second row for the same deployment address must be rejected
	duplicate := &addrstore.DeploymentAddressDao{
		DeploymentAddress: "0x1234567890123456789012345678901234567890",
		ContractName:      "Imposter",
		CompilerVersion:   "0.8.0",
	}
	_, err = db.NewInsert().Model(duplicate).Exec(ctx)
	if err == nil {
		t.Error("Expected duplicate deployment address insert to fail, but it succeeded")
	}

	mghelper.AssertRowCount(t, db, "deployment_address_details", 1)
}
