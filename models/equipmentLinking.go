package models

import "time"

// LinkingMethodResult is the per-strategy tally for one run. Created once per
// strategy per run, never mutated afterwards.
type LinkingMethodResult struct {
	Method       LinkingMethod `json:"method"`
	Success      bool          `json:"success"`
	LinkedCount  int           `json:"linked_count"`
	SkippedCount int           `json:"skipped_count"`
	ErrorCount   int           `json:"error_count"`
	Errors       []string      `json:"errors,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// EquipmentLinkingResult is the outcome of one RunLinking invocation.
type EquipmentLinkingResult struct {
	Success       bool                   `json:"success"`
	DryRun        bool                   `json:"dry_run"`
	TotalLinked   int                    `json:"total_linked"`
	TotalSkipped  int                    `json:"total_skipped"`
	TotalErrors   int                    `json:"total_errors"`
	MethodResults []*LinkingMethodResult `json:"method_results"`
	Errors        []string               `json:"errors,omitempty"`
	Warnings      []string               `json:"warnings,omitempty"`
	StartTime     time.Time              `json:"start_time"`
	EndTime       time.Time              `json:"end_time"`
	CorrelationId string                 `json:"correlation_id"`
}

// EquipmentLinkingDiagnostics is a point-in-time health snapshot of the
// linkage corpus, computed from current state rather than any single run.
type EquipmentLinkingDiagnostics struct {
	TotalEquipment                 int64                   `json:"total_equipment"`
	EquipmentWithLegacySourceId    int64                   `json:"equipment_with_legacy_source_id"`
	EquipmentWithoutLegacySourceId int64                   `json:"equipment_without_legacy_source_id"`
	EquipmentLinked                int64                   `json:"equipment_linked"`
	EquipmentUnlinked              int64                   `json:"equipment_unlinked"`
	LinksByMethod                  map[LinkingMethod]int64 `json:"links_by_method"`
	VisitReportRowsMatched         int64                   `json:"visit_report_rows_matched"`
	VisitReportRowsDangling        int64                   `json:"visit_report_rows_dangling"`
	ClientsWithLegacyCustomerId    int64                   `json:"clients_with_legacy_customer_id"`
	ClientsWithRelatedUserId       int64                   `json:"clients_with_related_user_id"`
	LastRunCorrelationId           *string                 `json:"last_run_correlation_id,omitempty"`
	GeneratedAt                    time.Time               `json:"generated_at"`
}

// UnlinkedEquipmentItem annotates an unresolved legacy item with a
// best-effort reason.
type UnlinkedEquipmentItem struct {
	OoiId        int     `json:"ooi_id"`
	SerialNumber *string `json:"serial_number"`
	ModelName    *string `json:"model_name"`
	ItemCode     *string `json:"item_code"`
	Reason       string  `json:"reason"`
}

// UnlinkedEquipmentReport is the paginated listing of unresolved equipment.
type UnlinkedEquipmentReport struct {
	Page          int                      `json:"page"`
	PageSize      int                      `json:"page_size"`
	TotalUnlinked int64                    `json:"total_unlinked"`
	TotalPages    int                      `json:"total_pages"`
	Items         []*UnlinkedEquipmentItem `json:"items"`
}

// EquipmentVerification is one equipment row of a per-client audit: which
// methods would currently corroborate the committed link.
type EquipmentVerification struct {
	OoiId                 int             `json:"ooi_id"`
	SerialNumber          *string         `json:"serial_number"`
	ModelName             *string         `json:"model_name"`
	LinkedMethod          LinkingMethod   `json:"linked_method"`
	LinkedAt              time.Time       `json:"linked_at"`
	CorroboratingMethods  []LinkingMethod `json:"corroborating_methods"`
	Issues                []string        `json:"issues,omitempty"`
}

// ClientEquipmentVerification is the per-client deep audit result.
type ClientEquipmentVerification struct {
	ClientId    int64                    `json:"client_id"`
	ClientName  string                   `json:"client_name"`
	Equipment   []*EquipmentVerification `json:"equipment"`
	IssueCount  int                      `json:"issue_count"`
	GeneratedAt time.Time                `json:"generated_at"`
}
