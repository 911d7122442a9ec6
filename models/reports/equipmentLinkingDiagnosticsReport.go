package reports

import (
	"context"
	"time"

	"bitbucket.org/meditech/medlink_backend/config"
	"bitbucket.org/meditech/medlink_backend/models"
	"bitbucket.org/meditech/medlink_backend/utils"
)

const (
	diagnosticsCacheKey = "report:linking-diagnostics"
	diagnosticsCacheTTL = 5 * time.Minute
)

type linksByMethodRow struct {
	Method models.LinkingMethod `gorm:"column:method"`
	Total  int64                `gorm:"column:total"`
}

// GetEquipmentLinkingDiagnostics computes the corpus-wide health snapshot:
// how much legacy equipment exists, how much is linked and by which method,
// and how healthy the evidence and client-key tables are. Cached briefly
// because it runs several full-table counts.
func GetEquipmentLinkingDiagnostics(ctx context.Context) (*models.EquipmentLinkingDiagnostics, error) {
	if config.ReportCacheEnabled() {
		var cached models.EquipmentLinkingDiagnostics
		if hit, err := config.GetRedisObject(diagnosticsCacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	legacyDb := config.GetLegacyDB()
	db := config.GetDB()
	diag := &models.EquipmentLinkingDiagnostics{
		LinksByMethod: make(map[models.LinkingMethod]int64),
	}

	equipmentCountsSql := `
SELECT
    COUNT(*) AS total,
    COUNT(CASE WHEN item_id IS NOT NULL AND item_id <> 0 THEN 1 END) AS with_source_id
FROM legacy_order_out_items
`
	var equipmentCounts struct {
		Total        int64 `gorm:"column:total"`
		WithSourceId int64 `gorm:"column:with_source_id"`
	}
	if err := legacyDb.WithContext(ctx).Raw(equipmentCountsSql).Scan(&equipmentCounts).Error; err != nil {
		return nil, err
	}
	diag.TotalEquipment = equipmentCounts.Total
	diag.EquipmentWithLegacySourceId = equipmentCounts.WithSourceId
	diag.EquipmentWithoutLegacySourceId = equipmentCounts.Total - equipmentCounts.WithSourceId

	var rows []*linksByMethodRow
	linksByMethodSql := `
SELECT method, COUNT(*) AS total
FROM equipment_links
GROUP BY method
`
	if err := db.WithContext(ctx).Raw(linksByMethodSql).Scan(&rows).Error; err != nil {
		return nil, err
	}
	applyLinkCounts(diag, rows)

	visitRowsSql := `
SELECT
    COUNT(CASE WHEN v.visiting_id IS NOT NULL THEN 1 END) AS matched,
    COUNT(CASE WHEN v.visiting_id IS NULL THEN 1 END) AS dangling
FROM legacy_visit_report_items vri
LEFT JOIN legacy_visits v ON v.visiting_id = vri.visiting_id
`
	var visitRows struct {
		Matched  int64 `gorm:"column:matched"`
		Dangling int64 `gorm:"column:dangling"`
	}
	if err := legacyDb.WithContext(ctx).Raw(visitRowsSql).Scan(&visitRows).Error; err != nil {
		return nil, err
	}
	diag.VisitReportRowsMatched = visitRows.Matched
	diag.VisitReportRowsDangling = visitRows.Dangling

	clientKeysSql := `
SELECT
    COUNT(CASE WHEN legacy_customer_id IS NOT NULL AND legacy_customer_id <> 0 THEN 1 END) AS with_legacy_customer_id,
    COUNT(CASE WHEN related_user_id IS NOT NULL AND related_user_id <> 0 THEN 1 END) AS with_related_user_id
FROM clients
`
	var clientKeys struct {
		WithLegacyCustomerId int64 `gorm:"column:with_legacy_customer_id"`
		WithRelatedUserId    int64 `gorm:"column:with_related_user_id"`
	}
	if err := db.WithContext(ctx).Raw(clientKeysSql).Scan(&clientKeys).Error; err != nil {
		return nil, err
	}
	diag.ClientsWithLegacyCustomerId = clientKeys.WithLegacyCustomerId
	diag.ClientsWithRelatedUserId = clientKeys.WithRelatedUserId

	if lastRun, found, err := config.GetRedisValue("equipment-linking:last-run"); err == nil && found {
		diag.LastRunCorrelationId = utils.NilIfEmpty(lastRun)
	}

	diag.GeneratedAt = time.Now().UTC()

	if config.ReportCacheEnabled() {
		if err := config.SetRedisObject(diagnosticsCacheKey, diag, diagnosticsCacheTTL); err != nil {
			config.LogError(config.GetLogger(), "equipmentLinkingDiagnosticsReport.go",
				"GetEquipmentLinkingDiagnostics", "cache diagnostics", nil, err)
		}
	}
	return diag, nil
}

// applyLinkCounts folds the per-method link counts into the snapshot, keeping
// linked + unlinked consistent with the source-id count.
func applyLinkCounts(diag *models.EquipmentLinkingDiagnostics, rows []*linksByMethodRow) {
	for _, row := range rows {
		diag.LinksByMethod[row.Method] = row.Total
		diag.EquipmentLinked += row.Total
	}
	diag.EquipmentUnlinked = diag.EquipmentWithLegacySourceId - diag.EquipmentLinked
	if diag.EquipmentUnlinked < 0 {
		// links exist for items the legacy extract no longer carries
		diag.EquipmentUnlinked = 0
	}
}

// InvalidateDiagnosticsCache drops the cached snapshot; called after a linking
// run changes the link corpus.
func InvalidateDiagnosticsCache() error {
	return config.RemoveRedisKey(diagnosticsCacheKey)
}
