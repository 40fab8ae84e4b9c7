package models

import (
	"bitbucket.org/mmdatafocus/maintenance_backend/config"
)

func MigrateTable() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&User{},
		&Part{},
		&PartUserDisplayName{},
		&Equipment{},
		&EquipmentPart{},
		&Work{},
		&WorkUsedPart{},
		&WorkCost{},
		&WorkContent{},
		&WorkAttachment{},
		&WorkActivity{},
		&WorkStatus{},
		&WorkPriority{},
		&WorkPurpose{},
		&WorkCostCategory{},
		&RepairType{},
		&WorkContentTag{},
		&ApiRequestLog{},
	)
}
