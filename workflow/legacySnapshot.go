package workflow

import (
	"context"
	"sort"

	"bitbucket.org/meditech/medlink_backend/config"
	"bitbucket.org/meditech/medlink_backend/models"
)

// LegacySnapshot holds the legacy evidence tables as index-backed maps. The
// cross-schema joins (visit -> report line -> equipment, contract -> contract
// item, invoice -> order-out) are walked in memory so the strategies stay
// pure functions over one consistent read.
type LegacySnapshot struct {
	VisitReportItemsByOoiId map[int][]*models.LegacyVisitReportItem
	VisitsById              map[int]*models.LegacyVisit

	ContractItemsByOoiId map[int][]*models.LegacyContractItem
	ContractsById        map[int]*models.LegacyMaintenanceContract

	SalesInvoicesByOoId map[int][]*models.LegacySalesInvoice
	SalesContractsById  map[int]*models.LegacySalesContract

	OrderOutsById map[int]*models.LegacyOrderOut
}

// LoadLegacySnapshot reads the four legacy evidence sources into memory.
// Per-equipment candidate rows are kept sorted ascending by source row id so
// ties resolve the same way on every run.
func LoadLegacySnapshot(ctx context.Context) (*LegacySnapshot, error) {
	legacyDb := config.GetLegacyDB()
	snap := &LegacySnapshot{
		VisitReportItemsByOoiId: make(map[int][]*models.LegacyVisitReportItem),
		VisitsById:              make(map[int]*models.LegacyVisit),
		ContractItemsByOoiId:    make(map[int][]*models.LegacyContractItem),
		ContractsById:           make(map[int]*models.LegacyMaintenanceContract),
		SalesInvoicesByOoId:     make(map[int][]*models.LegacySalesInvoice),
		SalesContractsById:      make(map[int]*models.LegacySalesContract),
		OrderOutsById:           make(map[int]*models.LegacyOrderOut),
	}

	var visitItems []*models.LegacyVisitReportItem
	if err := legacyDb.WithContext(ctx).Order("visiting_id ASC, id ASC").Find(&visitItems).Error; err != nil {
		return nil, err
	}
	for _, row := range visitItems {
		snap.VisitReportItemsByOoiId[row.OoiId] = append(snap.VisitReportItemsByOoiId[row.OoiId], row)
	}

	var visits []*models.LegacyVisit
	if err := legacyDb.WithContext(ctx).Find(&visits).Error; err != nil {
		return nil, err
	}
	for _, v := range visits {
		snap.VisitsById[v.VisitingId] = v
	}

	var contractItems []*models.LegacyContractItem
	if err := legacyDb.WithContext(ctx).Order("contract_id ASC, id ASC").Find(&contractItems).Error; err != nil {
		return nil, err
	}
	for _, row := range contractItems {
		snap.ContractItemsByOoiId[row.OoiId] = append(snap.ContractItemsByOoiId[row.OoiId], row)
	}

	var contracts []*models.LegacyMaintenanceContract
	if err := legacyDb.WithContext(ctx).Find(&contracts).Error; err != nil {
		return nil, err
	}
	for _, c := range contracts {
		snap.ContractsById[c.ContractId] = c
	}

	var invoices []*models.LegacySalesInvoice
	if err := legacyDb.WithContext(ctx).Order("si_id ASC").Find(&invoices).Error; err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		if inv.OoId == nil || *inv.OoId == 0 {
			continue
		}
		snap.SalesInvoicesByOoId[*inv.OoId] = append(snap.SalesInvoicesByOoId[*inv.OoId], inv)
	}

	var salesContracts []*models.LegacySalesContract
	if err := legacyDb.WithContext(ctx).Find(&salesContracts).Error; err != nil {
		return nil, err
	}
	for _, sc := range salesContracts {
		snap.SalesContractsById[sc.ScId] = sc
	}

	var orderOuts []*models.LegacyOrderOut
	if err := legacyDb.WithContext(ctx).Find(&orderOuts).Error; err != nil {
		return nil, err
	}
	for _, oo := range orderOuts {
		snap.OrderOutsById[oo.OoId] = oo
	}

	snap.sortIndexes()
	return snap, nil
}

// sortIndexes re-sorts the per-equipment candidate slices. Harmless after an
// ordered load; required when a snapshot is assembled row by row (tests,
// verification of a hand-built subset).
func (s *LegacySnapshot) sortIndexes() {
	for _, rows := range s.VisitReportItemsByOoiId {
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].VisitingId != rows[j].VisitingId {
				return rows[i].VisitingId < rows[j].VisitingId
			}
			return rows[i].Id < rows[j].Id
		})
	}
	for _, rows := range s.ContractItemsByOoiId {
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].ContractId != rows[j].ContractId {
				return rows[i].ContractId < rows[j].ContractId
			}
			return rows[i].Id < rows[j].Id
		})
	}
	for _, rows := range s.SalesInvoicesByOoId {
		sort.Slice(rows, func(i, j int) bool { return rows[i].SiId < rows[j].SiId })
	}
}

// NewLegacySnapshot assembles a snapshot from already-loaded rows. Tests and
// the verification report use it to evaluate strategies without a database.
func NewLegacySnapshot(
	visits []*models.LegacyVisit,
	visitItems []*models.LegacyVisitReportItem,
	contracts []*models.LegacyMaintenanceContract,
	contractItems []*models.LegacyContractItem,
	invoices []*models.LegacySalesInvoice,
	salesContracts []*models.LegacySalesContract,
	orderOuts []*models.LegacyOrderOut,
) *LegacySnapshot {
	snap := &LegacySnapshot{
		VisitReportItemsByOoiId: make(map[int][]*models.LegacyVisitReportItem),
		VisitsById:              make(map[int]*models.LegacyVisit),
		ContractItemsByOoiId:    make(map[int][]*models.LegacyContractItem),
		ContractsById:           make(map[int]*models.LegacyMaintenanceContract),
		SalesInvoicesByOoId:     make(map[int][]*models.LegacySalesInvoice),
		SalesContractsById:      make(map[int]*models.LegacySalesContract),
		OrderOutsById:           make(map[int]*models.LegacyOrderOut),
	}
	for _, v := range visits {
		snap.VisitsById[v.VisitingId] = v
	}
	for _, row := range visitItems {
		snap.VisitReportItemsByOoiId[row.OoiId] = append(snap.VisitReportItemsByOoiId[row.OoiId], row)
	}
	for _, c := range contracts {
		snap.ContractsById[c.ContractId] = c
	}
	for _, row := range contractItems {
		snap.ContractItemsByOoiId[row.OoiId] = append(snap.ContractItemsByOoiId[row.OoiId], row)
	}
	for _, inv := range invoices {
		if inv.OoId != nil && *inv.OoId != 0 {
			snap.SalesInvoicesByOoId[*inv.OoId] = append(snap.SalesInvoicesByOoId[*inv.OoId], inv)
		}
	}
	for _, sc := range salesContracts {
		snap.SalesContractsById[sc.ScId] = sc
	}
	for _, oo := range orderOuts {
		snap.OrderOutsById[oo.OoId] = oo
	}
	snap.sortIndexes()
	return snap
}
