package models

import (
	"context"
	"errors"

	"bitbucket.org/meditech/medlink_backend/utils"
)

// LegacyCustomer is a customer record from the decommissioned system.
type LegacyCustomer struct {
	CusId   int    `gorm:"column:cus_id;primary_key" json:"cus_id"`
	Name    string `gorm:"column:name;size:200" json:"name"`
	Phone   string `gorm:"column:phone;size:50" json:"phone"`
	Address string `gorm:"column:address;size:500" json:"address"`
}

func (LegacyCustomer) TableName() string {
	return "legacy_customers"
}

// LegacyCustomerUser maps a legacy customer to the user account that was
// created for it during migration. Clients that were migrated without a
// cus_id carry only the related_user_id side of this association.
type LegacyCustomerUser struct {
	Id     int `gorm:"column:id;primary_key" json:"id"`
	CusId  int `gorm:"column:cus_id;index" json:"cus_id"`
	UserId int `gorm:"column:user_id;index" json:"user_id"`
}

func (LegacyCustomerUser) TableName() string {
	return "legacy_customer_users"
}

// GetLegacyCustomerForEquipment follows an item's order-out header to the
// legacy customer it names. Returns nil (not an error) when the trail is
// incomplete; callers use this for triage display only, never for linking.
func GetLegacyCustomerForEquipment(ctx context.Context, item *LegacyEquipmentItem) (*LegacyCustomer, error) {
	if item == nil || item.OoId == nil || *item.OoId == 0 {
		return nil, nil
	}
	orderOut, err := utils.FetchLegacyModel[LegacyOrderOut](ctx, *item.OoId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if orderOut.CusId == nil || *orderOut.CusId == 0 {
		return nil, nil
	}
	customer, err := utils.FetchLegacyModel[LegacyCustomer](ctx, *orderOut.CusId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return customer, nil
}
