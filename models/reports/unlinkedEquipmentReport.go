package reports

import (
	"context"
	"fmt"
	"os"
	"time"

	"bitbucket.org/meditech/medlink_backend/config"
	"bitbucket.org/meditech/medlink_backend/models"
	"bitbucket.org/meditech/medlink_backend/utils"
	"bitbucket.org/meditech/medlink_backend/workflow"
	"github.com/xuri/excelize/v2"
)

const (
	defaultUnlinkedPageSize = 50
	maxUnlinkedPageSize     = 500
)

// GetUnlinkedEquipmentReport lists the legacy equipment that still has no
// link, annotated with a best-effort reason per item. Pages are 1-based.
func GetUnlinkedEquipmentReport(ctx context.Context, page int, pageSize int) (*models.UnlinkedEquipmentReport, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultUnlinkedPageSize
	}
	if pageSize > maxUnlinkedPageSize {
		pageSize = maxUnlinkedPageSize
	}

	unlinked, err := loadUnlinkedItems(ctx)
	if err != nil {
		return nil, err
	}

	report := &models.UnlinkedEquipmentReport{
		Page:          page,
		PageSize:      pageSize,
		TotalUnlinked: int64(len(unlinked)),
		TotalPages:    (len(unlinked) + pageSize - 1) / pageSize,
		Items:         []*models.UnlinkedEquipmentItem{},
	}

	start := (page - 1) * pageSize
	if start >= len(unlinked) {
		return report, nil
	}
	end := start + pageSize
	if end > len(unlinked) {
		end = len(unlinked)
	}
	pageItems := unlinked[start:end]

	snap, err := workflow.LoadLegacySnapshot(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := models.LoadClientIndex(ctx)
	if err != nil {
		return nil, err
	}

	for _, item := range pageItems {
		report.Items = append(report.Items, &models.UnlinkedEquipmentItem{
			OoiId:        item.OoiId,
			SerialNumber: item.SerialNumber,
			ModelName:    item.ModelName,
			ItemCode:     item.ItemCode,
			Reason:       unlinkedReason(snap, idx, item),
		})
	}
	return report, nil
}

// loadUnlinkedItems returns every legacy item without a link, including the
// ones excluded from linking for missing a source id, ordered by ooi_id.
func loadUnlinkedItems(ctx context.Context) ([]*models.LegacyEquipmentItem, error) {
	linked, err := models.GetLinkedEquipmentIds(ctx)
	if err != nil {
		return nil, err
	}
	legacyDb := config.GetLegacyDB()
	var items []*models.LegacyEquipmentItem
	if err := legacyDb.WithContext(ctx).Order("ooi_id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	unlinked := make([]*models.LegacyEquipmentItem, 0, len(items))
	for _, item := range items {
		if _, ok := linked[item.OoiId]; !ok {
			unlinked = append(unlinked, item)
		}
	}
	return unlinked, nil
}

// unlinkedReason explains why an item is still unlinked, using the same
// strategies and directory a run would use.
func unlinkedReason(snap *workflow.LegacySnapshot, idx *models.ClientIndex, item *models.LegacyEquipmentItem) string {
	if !item.HasLegacySourceId() {
		return "no legacy source id"
	}
	for _, strategy := range workflow.LinkingStrategies() {
		cusId, ok := strategy.Resolve(snap, item)
		if !ok {
			continue
		}
		if _, err := idx.Resolve(cusId); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("resolvable via %s; awaiting linking run", strategy.Method())
	}
	return "all strategies skipped"
}

// ExportUnlinkedEquipment renders the full unlinked listing as a workbook.
// Returns the file bytes and the object name; a copy is uploaded to GCS when
// a bucket is configured, best effort.
func ExportUnlinkedEquipment(ctx context.Context) ([]byte, string, error) {
	unlinked, err := loadUnlinkedItems(ctx)
	if err != nil {
		return nil, "", err
	}
	snap, err := workflow.LoadLegacySnapshot(ctx)
	if err != nil {
		return nil, "", err
	}
	idx, err := models.LoadClientIndex(ctx)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, "", err
	}

	// Add headers
	f.SetCellValue(sheet, "A1", "OoiId")
	f.SetCellValue(sheet, "B1", "SerialNumber")
	f.SetCellValue(sheet, "C1", "ModelName")
	f.SetCellValue(sheet, "D1", "ItemCode")
	f.SetCellValue(sheet, "E1", "Reason")

	// Add data
	for i, item := range unlinked {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+row, item.OoiId)
		f.SetCellValue(sheet, "B"+row, utils.DereferencePtr(item.SerialNumber, ""))
		f.SetCellValue(sheet, "C"+row, utils.DereferencePtr(item.ModelName, ""))
		f.SetCellValue(sheet, "D"+row, utils.DereferencePtr(item.ItemCode, ""))
		f.SetCellValue(sheet, "E"+row, unlinkedReason(snap, idx, item))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}

	objectName := fmt.Sprintf("reports/unlinked-equipment-%s.xlsx", time.Now().UTC().Format("20060102T150405"))
	if os.Getenv("GCS_BUCKET") != "" {
		contentType := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		if err := utils.SaveReportToGCS(ctx, objectName, contentType, buf.Bytes()); err != nil {
			config.LogError(config.GetLogger(), "unlinkedEquipmentReport.go",
				"ExportUnlinkedEquipment", "upload workbook", objectName, err)
		}
	}
	return buf.Bytes(), objectName, nil
}
