package models

import "time"

// LegacyMaintenanceContract is a maintenance agreement from the legacy
// system. Linking uses the contract's own cus_id, not the equipment's.
type LegacyMaintenanceContract struct {
	ContractId int        `gorm:"column:contract_id;primary_key" json:"contract_id"`
	CusId      *int       `gorm:"column:cus_id" json:"cus_id"`
	StartDate  *time.Time `gorm:"column:start_date" json:"start_date"`
	EndDate    *time.Time `gorm:"column:end_date" json:"end_date"`
}

func (LegacyMaintenanceContract) TableName() string {
	return "legacy_maintenance_contracts"
}

// LegacyContractItem joins a maintenance contract to a covered equipment item.
type LegacyContractItem struct {
	Id         int `gorm:"column:id;primary_key" json:"id"`
	ContractId int `gorm:"column:contract_id;index" json:"contract_id"`
	OoiId      int `gorm:"column:ooi_id;index" json:"ooi_id"`
}

func (LegacyContractItem) TableName() string {
	return "legacy_contract_items"
}
