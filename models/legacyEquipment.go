package models

import (
	"context"
	"time"

	"bitbucket.org/meditech/medlink_backend/config"
	"bitbucket.org/meditech/medlink_backend/utils"
	"github.com/shopspring/decimal"
)

// LegacyEquipmentItem is an order-out line item from the decommissioned
// system. The legacy database is frozen; these rows are never mutated.
type LegacyEquipmentItem struct {
	OoiId          int             `gorm:"column:ooi_id;primary_key" json:"ooi_id"`
	OoId           *int            `gorm:"column:oo_id" json:"oo_id"`
	ItemId         *int            `gorm:"column:item_id" json:"item_id"`
	SerialNumber   *string         `gorm:"column:serial_number;size:100" json:"serial_number"`
	ModelName      *string         `gorm:"column:model_name;size:200" json:"model_name"`
	ModelNameEn    *string         `gorm:"column:model_name_en;size:200" json:"model_name_en"`
	ItemCode       *string         `gorm:"column:item_code;size:50" json:"item_code"`
	Qty            decimal.Decimal `gorm:"column:qty;type:decimal(20,4)" json:"qty"`
	ExpirationDate *time.Time      `gorm:"column:expiration_date" json:"expiration_date"`
}

func (LegacyEquipmentItem) TableName() string {
	return "legacy_order_out_items"
}

// HasLegacySourceId reports whether the item is linkable at all. Items without
// an item id belong in the admin bucket and are excluded from linking.
func (e *LegacyEquipmentItem) HasLegacySourceId() bool {
	return e.ItemId != nil && *e.ItemId != 0
}

// LegacyOrderOut is the order-out header; its cus_id is the cheapest evidence
// trail (ViaOrderOut strategy).
type LegacyOrderOut struct {
	OoId      int        `gorm:"column:oo_id;primary_key" json:"oo_id"`
	CusId     *int       `gorm:"column:cus_id" json:"cus_id"`
	OrderDate *time.Time `gorm:"column:order_date" json:"order_date"`
}

func (LegacyOrderOut) TableName() string {
	return "legacy_order_outs"
}

// GetUnlinkedLegacyEquipment returns the legacy items that carry a source id
// and have no committed link yet, ordered by ooi_id so runs are deterministic.
// scope restricts the result to the given ooi_ids (empty = all).
func GetUnlinkedLegacyEquipment(ctx context.Context, scope []int) ([]*LegacyEquipmentItem, error) {
	linked, err := GetLinkedEquipmentIds(ctx)
	if err != nil {
		return nil, err
	}

	legacyDb := config.GetLegacyDB()
	dbCtx := legacyDb.WithContext(ctx).
		Where("item_id IS NOT NULL AND item_id <> 0").
		Order("ooi_id ASC")
	if len(scope) > 0 {
		dbCtx = dbCtx.Where("ooi_id IN ?", scope)
	}

	var items []*LegacyEquipmentItem
	if err := dbCtx.Find(&items).Error; err != nil {
		return nil, err
	}

	if len(linked) == 0 {
		return items, nil
	}
	unlinked := make([]*LegacyEquipmentItem, 0, len(items))
	for _, item := range items {
		if _, ok := linked[item.OoiId]; !ok {
			unlinked = append(unlinked, item)
		}
	}
	return unlinked, nil
}

// GetLegacyEquipmentItem loads one legacy item by ooi_id.
func GetLegacyEquipmentItem(ctx context.Context, ooiId int) (*LegacyEquipmentItem, error) {
	return utils.FetchLegacyModel[LegacyEquipmentItem](ctx, ooiId)
}

// GetLegacyEquipmentByIds loads specific legacy items keyed by ooi_id.
func GetLegacyEquipmentByIds(ctx context.Context, ooiIds []int) (map[int]*LegacyEquipmentItem, error) {
	result := make(map[int]*LegacyEquipmentItem, len(ooiIds))
	if len(ooiIds) == 0 {
		return result, nil
	}
	legacyDb := config.GetLegacyDB()
	var items []*LegacyEquipmentItem
	if err := legacyDb.WithContext(ctx).Where("ooi_id IN ?", ooiIds).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, item := range items {
		result[item.OoiId] = item
	}
	return result, nil
}
