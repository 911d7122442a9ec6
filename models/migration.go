package models

import (
	"log"

	"bitbucket.org/meditech/medlink_backend/config"
)

// MigrateTable migrates the tables this engine owns. The legacy database is
// frozen and never migrated; the clients table is owned by the client CRUD
// service and only created here for local development.
func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Client{},
		&EquipmentLink{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
