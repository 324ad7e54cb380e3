package migrations

import "github.com/go-rel/rel"

func MigrateCreateRemoteAccessInfos(schema *rel.Schema) {
	schema.CreateTable("remote_access_infos", func(t *rel.Table) {
		t.ID("id")
		t.String("token", rel.Limit(64))
		t.String("versions_url", rel.Limit(512))
		t.String("version", rel.Limit(16))
		t.JSON("endpoints")
		t.DateTime("received_at")
		t.Int("position")
		t.String("remote_party", rel.Limit(16))
		t.ForeignKey("remote_party", "remote_parties", "id")
	})
}

func RollbackCreateRemoteAccessInfos(schema *rel.Schema) {
	schema.DropTable("remote_access_infos")
}
