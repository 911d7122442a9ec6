package models

import "time"

// LegacyVisit is a field-service visiting record. Its cus_id is the highest
// priority evidence for equipment linking.
type LegacyVisit struct {
	VisitingId int        `gorm:"column:visiting_id;primary_key" json:"visiting_id"`
	CusId      *int       `gorm:"column:cus_id" json:"cus_id"`
	VisitDate  *time.Time `gorm:"column:visit_date" json:"visit_date"`
}

func (LegacyVisit) TableName() string {
	return "legacy_visits"
}

// LegacyVisitReportItem is a visiting report line pointing at the equipment
// item that was serviced during the visit.
type LegacyVisitReportItem struct {
	Id         int `gorm:"column:id;primary_key" json:"id"`
	VisitingId int `gorm:"column:visiting_id;index" json:"visiting_id"`
	OoiId      int `gorm:"column:ooi_id;index" json:"ooi_id"`
}

func (LegacyVisitReportItem) TableName() string {
	return "legacy_visit_report_items"
}
