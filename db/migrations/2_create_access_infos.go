package migrations

import "github.com/go-rel/rel"

func MigrateCreateAccessInfos(schema *rel.Schema) {
	schema.CreateTable("access_infos", func(t *rel.Table) {
		t.ID("id")
		t.String("token", rel.Limit(64))
		t.String("status", rel.Limit(16))
		t.DateTime("issued_at")
		t.Int("position")
		t.String("remote_party", rel.Limit(16))
		t.ForeignKey("remote_party", "remote_parties", "id")
	})
	schema.CreateIndex("access_infos", "access_infos_token", []string{"token"})
}

func RollbackCreateAccessInfos(schema *rel.Schema) {
	schema.DropTable("access_infos")
}
