package migrations

import (
	"testing"

	"github.com/go-rel/rel"
)

func TestMigrations(t *testing.T) {

	type test struct {
		testName string
		migrate  func(schema *rel.Schema)
		rollback func(schema *rel.Schema)
	}

	tests := []test{
		{"Create the remote parties table.", MigrateCreateRemoteParties, RollbackCreateRemoteParties},
		{"Create the access infos table.", MigrateCreateAccessInfos, RollbackCreateAccessInfos},
		{"Create the remote access infos table.", MigrateCreateRemoteAccessInfos, RollbackCreateRemoteAccessInfos},
	}

	for _, tc := range tests {
		t.Run(tc.testName, func(t *testing.T) {
			var migrateSchema rel.Schema
			tc.migrate(&migrateSchema)
			if len(migrateSchema.Migrations) == 0 {
				t.Errorf("%s: The migration should define at least one step.", tc.testName)
			}

			var rollbackSchema rel.Schema
			tc.rollback(&rollbackSchema)
			if len(rollbackSchema.Migrations) != 1 {
				t.Errorf("%s: The rollback should drop exactly one table, but had %d steps.", tc.testName, len(rollbackSchema.Migrations))
			}
		})
	}
}
