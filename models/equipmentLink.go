package models

import (
	"context"
	"time"

	"bitbucket.org/meditech/medlink_backend/config"
	"bitbucket.org/meditech/medlink_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EquipmentLink is the committed equipment -> client association together
// with the strategy that produced it. Append-only within a run: the unique
// key on equipment_id plus the DO NOTHING insert makes re-linking a no-op.
type EquipmentLink struct {
	Id            int64         `gorm:"primary_key" json:"id"`
	EquipmentId   int           `gorm:"column:equipment_id;uniqueIndex;not null" json:"equipment_id"`
	ClientId      int64         `gorm:"not null;index" json:"client_id"`
	Method        LinkingMethod `gorm:"type:enum('ViaVisits','ViaMaintenanceContracts','ViaSalesInvoices','ViaOrderOut');not null" json:"method"`
	LinkedAt      time.Time     `gorm:"not null" json:"linked_at"`
	CorrelationId string        `gorm:"size:64" json:"correlation_id"`
}

func (EquipmentLink) TableName() string {
	return "equipment_links"
}

// InsertEquipmentLinkIfAbsent commits a link unless the equipment already has
// one. Returns true when the row was inserted. Conditional insert (not
// read-then-write) so parallel strategy workers cannot race past the
// at-most-one-link invariant.
func InsertEquipmentLinkIfAbsent(ctx context.Context, link *EquipmentLink) (bool, error) {
	db := config.GetDB()
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "equipment_id"}},
			DoNothing: true,
		}).
		Create(link)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetLinkedEquipmentIds returns the set of equipment ids that already carry a
// link. Used to exclude them from a run's input set (idempotency).
func GetLinkedEquipmentIds(ctx context.Context) (map[int]struct{}, error) {
	db := config.GetDB()
	var ids []int
	if err := db.WithContext(ctx).Model(&EquipmentLink{}).
		Pluck("equipment_id", &ids).Error; err != nil {
		return nil, err
	}
	linked := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		linked[id] = struct{}{}
	}
	return linked, nil
}

// GetEquipmentLinksByClient returns all committed links of one client,
// ordered by equipment id.
func GetEquipmentLinksByClient(ctx context.Context, clientId int64) ([]*EquipmentLink, error) {
	db := config.GetDB()
	var links []*EquipmentLink
	if err := db.WithContext(ctx).
		Where("client_id = ?", clientId).
		Order("equipment_id ASC").
		Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

// GetEquipmentLinkByEquipmentId returns the committed link for one equipment
// item, or nil when the item is unlinked.
func GetEquipmentLinkByEquipmentId(ctx context.Context, equipmentId int) (*EquipmentLink, error) {
	db := config.GetDB()
	var links []*EquipmentLink
	if err := db.WithContext(ctx).
		Where("equipment_id = ?", equipmentId).
		Limit(1).Find(&links).Error; err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, nil
	}
	return links[0], nil
}

// DeleteEquipmentLinks removes the links for the given equipment ids (all
// links when scope is empty). Only the explicit destructive relink mode calls
// this; normal runs never retract a link.
func DeleteEquipmentLinks(ctx context.Context, scope []int) (int64, error) {
	sqlT := `DELETE FROM equipment_links{{- if .scoped }} WHERE equipment_id IN (?){{- end }}`
	sql, err := utils.ExecTemplate(sqlT, map[string]interface{}{"scoped": len(scope) > 0})
	if err != nil {
		return 0, err
	}

	db := config.GetDB()
	var result *gorm.DB
	if len(scope) > 0 {
		result = db.WithContext(ctx).Exec(sql, scope)
	} else {
		result = db.WithContext(ctx).Exec(sql)
	}
	return result.RowsAffected, result.Error
}
