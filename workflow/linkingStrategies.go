package workflow

import (
	"bitbucket.org/meditech/medlink_backend/models"
)

// LinkingStrategy maps legacy equipment items to candidate legacy customer
// ids through one evidence trail. Strategies are pure over the snapshot: no
// I/O, no state, identical output for identical input.
//
// ResolveAll returns ooi_id -> cus_id for every item it can resolve; an
// absent entry is a skip. Resolution of cus_id to a current client is the
// orchestrator's job, shared by all strategies.
type LinkingStrategy interface {
	Method() models.LinkingMethod
	ResolveAll(snap *LegacySnapshot, items []*models.LegacyEquipmentItem) map[int]int
	// Resolve is the single-item form used by the verification report.
	Resolve(snap *LegacySnapshot, item *models.LegacyEquipmentItem) (int, bool)
}

// LinkingStrategies returns the strategies in their fixed priority order:
// Visits -> MaintenanceContracts -> SalesInvoices -> OrderOut.
func LinkingStrategies() []LinkingStrategy {
	return []LinkingStrategy{
		viaVisitsStrategy{},
		viaMaintenanceContractsStrategy{},
		viaSalesInvoicesStrategy{},
		viaOrderOutStrategy{},
	}
}

func resolveAll(s LinkingStrategy, snap *LegacySnapshot, items []*models.LegacyEquipmentItem) map[int]int {
	candidates := make(map[int]int)
	for _, item := range items {
		if cusId, ok := s.Resolve(snap, item); ok {
			candidates[item.OoiId] = cusId
		}
	}
	return candidates
}

// viaVisitsStrategy: equipment -> visiting report line -> visit -> cus_id.
// Lines are pre-sorted by visiting_id, so the lowest visit wins. Visits with
// a null or zero cus_id are non-matching, not errors.
type viaVisitsStrategy struct{}

func (viaVisitsStrategy) Method() models.LinkingMethod { return models.LinkingMethodViaVisits }

func (s viaVisitsStrategy) ResolveAll(snap *LegacySnapshot, items []*models.LegacyEquipmentItem) map[int]int {
	return resolveAll(s, snap, items)
}

func (viaVisitsStrategy) Resolve(snap *LegacySnapshot, item *models.LegacyEquipmentItem) (int, bool) {
	for _, line := range snap.VisitReportItemsByOoiId[item.OoiId] {
		visit, ok := snap.VisitsById[line.VisitingId]
		if !ok {
			// dangling report line; surfaced by diagnostics, not an error here
			continue
		}
		if visit.CusId == nil || *visit.CusId == 0 {
			continue
		}
		return *visit.CusId, true
	}
	return 0, false
}

// viaMaintenanceContractsStrategy: equipment -> contract item -> contract ->
// the contract's own cus_id (not the equipment's order hint).
type viaMaintenanceContractsStrategy struct{}

func (viaMaintenanceContractsStrategy) Method() models.LinkingMethod {
	return models.LinkingMethodViaMaintenanceContracts
}

func (s viaMaintenanceContractsStrategy) ResolveAll(snap *LegacySnapshot, items []*models.LegacyEquipmentItem) map[int]int {
	return resolveAll(s, snap, items)
}

func (viaMaintenanceContractsStrategy) Resolve(snap *LegacySnapshot, item *models.LegacyEquipmentItem) (int, bool) {
	for _, line := range snap.ContractItemsByOoiId[item.OoiId] {
		contract, ok := snap.ContractsById[line.ContractId]
		if !ok {
			continue
		}
		if contract.CusId == nil || *contract.CusId == 0 {
			continue
		}
		return *contract.CusId, true
	}
	return 0, false
}

// viaSalesInvoicesStrategy walks the longest chain: equipment -> order-out ->
// sales invoice -> sales contract -> cus_id. Any missing hop is a skip.
type viaSalesInvoicesStrategy struct{}

func (viaSalesInvoicesStrategy) Method() models.LinkingMethod {
	return models.LinkingMethodViaSalesInvoices
}

func (s viaSalesInvoicesStrategy) ResolveAll(snap *LegacySnapshot, items []*models.LegacyEquipmentItem) map[int]int {
	return resolveAll(s, snap, items)
}

func (viaSalesInvoicesStrategy) Resolve(snap *LegacySnapshot, item *models.LegacyEquipmentItem) (int, bool) {
	if item.OoId == nil || *item.OoId == 0 {
		return 0, false
	}
	for _, invoice := range snap.SalesInvoicesByOoId[*item.OoId] {
		if invoice.ScId == nil || *invoice.ScId == 0 {
			continue
		}
		contract, ok := snap.SalesContractsById[*invoice.ScId]
		if !ok {
			continue
		}
		if contract.CusId == nil || *contract.CusId == 0 {
			continue
		}
		return *contract.CusId, true
	}
	return 0, false
}

// viaOrderOutStrategy reads the cus_id straight off the order-out header.
// Cheapest and most reliable trail, evaluated last by priority.
type viaOrderOutStrategy struct{}

func (viaOrderOutStrategy) Method() models.LinkingMethod { return models.LinkingMethodViaOrderOut }

func (s viaOrderOutStrategy) ResolveAll(snap *LegacySnapshot, items []*models.LegacyEquipmentItem) map[int]int {
	return resolveAll(s, snap, items)
}

func (viaOrderOutStrategy) Resolve(snap *LegacySnapshot, item *models.LegacyEquipmentItem) (int, bool) {
	if item.OoId == nil || *item.OoId == 0 {
		return 0, false
	}
	header, ok := snap.OrderOutsById[*item.OoId]
	if !ok {
		return 0, false
	}
	if header.CusId == nil || *header.CusId == 0 {
		return 0, false
	}
	return *header.CusId, true
}
