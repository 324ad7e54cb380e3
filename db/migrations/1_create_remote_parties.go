package migrations

import "github.com/go-rel/rel"

func MigrateCreateRemoteParties(schema *rel.Schema) {
	schema.CreateTable("remote_parties", func(t *rel.Table) {
		t.String("id", rel.Limit(16))
		t.String("country_code", rel.Limit(2))
		t.String("party_id", rel.Limit(3))
		t.String("role", rel.Limit(8))
		t.String("status", rel.Limit(16))
		t.String("business_name")
		t.String("business_website")
		t.DateTime("last_updated")
		t.PrimaryKey("id")
	})
}

func RollbackCreateRemoteParties(schema *rel.Schema) {
	schema.DropTable("remote_parties")
}
