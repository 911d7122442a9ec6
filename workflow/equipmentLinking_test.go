package workflow

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/meditech/medlink_backend/models"
)

// NOTE: These tests are intentionally DB-free. They validate the core linking
// semantics over hand-built snapshots:
// - fixed strategy priority, first hit wins, at most one link per item
// - per-strategy conservation: linked + skipped + errors covers what it saw
// - identical outcomes with concurrent and sequential resolution
//
// Full DB integration tests belong in an environment that can run MySQL.

func intPtr(v int) *int { return &v }

// linkRecorder is an in-memory stand-in for the conditional insert.
type linkRecorder struct {
	mu       sync.Mutex
	links    map[int]*models.EquipmentLink
	attempts map[int]int
	failFor  map[int]bool
}

func newLinkRecorder() *linkRecorder {
	return &linkRecorder{
		links:    map[int]*models.EquipmentLink{},
		attempts: map[int]int{},
		failFor:  map[int]bool{},
	}
}

func (r *linkRecorder) commit(ctx context.Context, link *models.EquipmentLink) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[link.EquipmentId]++
	if r.failFor[link.EquipmentId] {
		return false, context.DeadlineExceeded
	}
	if _, ok := r.links[link.EquipmentId]; ok {
		return false, nil
	}
	r.links[link.EquipmentId] = link
	return true, nil
}

// testFixture covers every evidence trail:
//
//	ooi 101  visit 11 -> cus 10            -> client 1  (ViaVisits)
//	ooi 202  contract 21 -> cus 20         -> client 2  (ViaMaintenanceContracts)
//	         also order-out 62 -> cus 30, which must lose on priority
//	ooi 303  order-out 63 -> cus 30        -> client 3  (ViaOrderOut)
//	ooi 404  no evidence anywhere          -> skipped by all four
//	ooi 501  order-out 61 -> invoice 71 -> sales contract 81 -> cus 77
//	                                       -> client 9  (ViaSalesInvoices)
//	ooi 502  order-out 64 -> cus 999, unknown to the directory -> error
func testFixture() ([]*models.LegacyEquipmentItem, *LegacySnapshot, *models.ClientIndex) {
	items := []*models.LegacyEquipmentItem{
		{OoiId: 101, ItemId: intPtr(1)},
		{OoiId: 202, OoId: intPtr(62), ItemId: intPtr(2)},
		{OoiId: 303, OoId: intPtr(63), ItemId: intPtr(3)},
		{OoiId: 404, ItemId: intPtr(4)},
		{OoiId: 501, OoId: intPtr(61), ItemId: intPtr(5)},
		{OoiId: 502, OoId: intPtr(64), ItemId: intPtr(6)},
	}

	snap := NewLegacySnapshot(
		[]*models.LegacyVisit{
			{VisitingId: 11, CusId: intPtr(10)},
		},
		[]*models.LegacyVisitReportItem{
			{Id: 1, VisitingId: 11, OoiId: 101},
		},
		[]*models.LegacyMaintenanceContract{
			{ContractId: 21, CusId: intPtr(20)},
		},
		[]*models.LegacyContractItem{
			{Id: 1, ContractId: 21, OoiId: 202},
		},
		[]*models.LegacySalesInvoice{
			{SiId: 71, ScId: intPtr(81), OoId: intPtr(61)},
		},
		[]*models.LegacySalesContract{
			{ScId: 81, CusId: intPtr(77)},
		},
		[]*models.LegacyOrderOut{
			{OoId: 62, CusId: intPtr(30)},
			{OoId: 63, CusId: intPtr(30)},
			{OoId: 64, CusId: intPtr(999)},
		},
	)

	idx := models.NewClientIndex(
		[]*models.Client{
			{Id: 1, Name: "Yangon General", LegacyCustomerId: intPtr(10)},
			{Id: 2, Name: "Mandalay Clinic", LegacyCustomerId: intPtr(20)},
			{Id: 3, Name: "Taunggyi Lab", LegacyCustomerId: intPtr(30)},
			{Id: 9, Name: "Naypyitaw Hospital", LegacyCustomerId: intPtr(77)},
		},
		nil,
	)

	return items, snap, idx
}

func runFixture(t *testing.T, concurrent bool, rec *linkRecorder) *models.EquipmentLinkingResult {
	t.Helper()
	items, snap, idx := testFixture()
	result := &models.EquipmentLinkingResult{StartTime: time.Now().UTC(), CorrelationId: "test-run"}
	executeLinking(context.Background(), items, snap, idx, concurrent, rec.commit, result)
	return result
}

func TestLinkingStrategies_MatchDeclaredPriority(t *testing.T) {
	strategies := LinkingStrategies()
	if len(strategies) != len(models.LinkingMethodPriority) {
		t.Fatalf("got %d strategies, want %d", len(strategies), len(models.LinkingMethodPriority))
	}
	for i, s := range strategies {
		if s.Method() != models.LinkingMethodPriority[i] {
			t.Errorf("strategy %d is %s, want %s", i, s.Method(), models.LinkingMethodPriority[i])
		}
	}
}

func TestLinking_PriorityOrder_FirstHitWins(t *testing.T) {
	rec := newLinkRecorder()
	result := runFixture(t, false, rec)

	want := map[int]struct {
		clientId int64
		method   models.LinkingMethod
	}{
		101: {1, models.LinkingMethodViaVisits},
		202: {2, models.LinkingMethodViaMaintenanceContracts},
		501: {9, models.LinkingMethodViaSalesInvoices},
		303: {3, models.LinkingMethodViaOrderOut},
	}
	if len(rec.links) != len(want) {
		t.Fatalf("expected %d links, got %d", len(want), len(rec.links))
	}
	for ooiId, w := range want {
		link, ok := rec.links[ooiId]
		if !ok {
			t.Fatalf("equipment %d not linked", ooiId)
		}
		if link.ClientId != w.clientId || link.Method != w.method {
			t.Errorf("equipment %d linked client=%d method=%s, want client=%d method=%s",
				ooiId, link.ClientId, link.Method, w.clientId, w.method)
		}
	}
	if _, ok := rec.links[404]; ok {
		t.Error("equipment 404 has no evidence and must stay unlinked")
	}
	if _, ok := rec.links[502]; ok {
		t.Error("equipment 502 resolves to an unknown customer and must stay unlinked")
	}

	if !result.Success {
		t.Errorf("run should succeed when at least one strategy completes: %v", result.Errors)
	}
	if result.TotalLinked != 4 {
		t.Errorf("TotalLinked = %d, want 4", result.TotalLinked)
	}
	if result.TotalErrors != 1 {
		t.Errorf("TotalErrors = %d, want 1 (unknown customer 999)", result.TotalErrors)
	}
}

func TestLinking_HigherPriorityBeatsOrderOutEvidence(t *testing.T) {
	// 202 carries both a maintenance contract and an order-out header hint
	// pointing at different customers; the contract must win.
	rec := newLinkRecorder()
	runFixture(t, false, rec)

	link := rec.links[202]
	if link == nil {
		t.Fatal("equipment 202 not linked")
	}
	if link.Method != models.LinkingMethodViaMaintenanceContracts {
		t.Errorf("equipment 202 linked via %s, want %s", link.Method, models.LinkingMethodViaMaintenanceContracts)
	}
	if link.ClientId != 2 {
		t.Errorf("equipment 202 linked to client %d, want 2 (contract customer, not order-out customer)", link.ClientId)
	}
}

func TestLinking_AtMostOneCommitPerItem(t *testing.T) {
	rec := newLinkRecorder()
	runFixture(t, false, rec)

	for ooiId, n := range rec.attempts {
		if n > 1 {
			t.Errorf("equipment %d saw %d commit attempts, want at most 1", ooiId, n)
		}
	}
}

func TestLinking_ConservationPerStrategy(t *testing.T) {
	rec := newLinkRecorder()
	result := runFixture(t, false, rec)

	// Each strategy considers what the previous ones left behind; items with
	// resolution errors stay in the pool.
	remaining := 6
	for _, mr := range result.MethodResults {
		if !mr.Success {
			t.Fatalf("strategy %s failed unexpectedly: %s", mr.Method, mr.ErrorMessage)
		}
		total := mr.LinkedCount + mr.SkippedCount + mr.ErrorCount
		if total != remaining {
			t.Errorf("strategy %s: linked+skipped+errors = %d, want %d", mr.Method, total, remaining)
		}
		remaining -= mr.LinkedCount
	}
}

func TestLinking_ConcurrentMatchesSequential(t *testing.T) {
	for run := 0; run < 50; run++ {
		seqRec := newLinkRecorder()
		seq := runFixture(t, false, seqRec)
		conRec := newLinkRecorder()
		con := runFixture(t, true, conRec)

		if seq.TotalLinked != con.TotalLinked || seq.TotalSkipped != con.TotalSkipped || seq.TotalErrors != con.TotalErrors {
			t.Fatalf("run=%d tallies diverge: sequential %d/%d/%d concurrent %d/%d/%d",
				run, seq.TotalLinked, seq.TotalSkipped, seq.TotalErrors,
				con.TotalLinked, con.TotalSkipped, con.TotalErrors)
		}
		for ooiId, seqLink := range seqRec.links {
			conLink, ok := conRec.links[ooiId]
			if !ok {
				t.Fatalf("run=%d equipment %d linked sequentially but not concurrently", run, ooiId)
			}
			if seqLink.ClientId != conLink.ClientId || seqLink.Method != conLink.Method {
				t.Fatalf("run=%d equipment %d diverges: sequential client=%d method=%s, concurrent client=%d method=%s",
					run, ooiId, seqLink.ClientId, seqLink.Method, conLink.ClientId, conLink.Method)
			}
		}
	}
}

func TestLinking_SecondRunLinksNothingNew(t *testing.T) {
	rec := newLinkRecorder()
	first := runFixture(t, false, rec)

	second := runFixture(t, false, rec)
	if second.TotalLinked != 0 {
		t.Errorf("second run linked %d items over the same recorder, want 0", second.TotalLinked)
	}
	if len(rec.links) != first.TotalLinked {
		t.Errorf("link count changed across runs: %d vs %d", len(rec.links), first.TotalLinked)
	}
	// the already-present items count as skips, not errors
	if second.TotalErrors != first.TotalErrors {
		t.Errorf("second run errors = %d, want %d", second.TotalErrors, first.TotalErrors)
	}
}

func TestLinking_UnknownCustomerIsErrorNotGuess(t *testing.T) {
	rec := newLinkRecorder()
	result := runFixture(t, false, rec)

	var orderOut *models.LinkingMethodResult
	for _, mr := range result.MethodResults {
		if mr.Method == models.LinkingMethodViaOrderOut {
			orderOut = mr
		}
	}
	if orderOut == nil {
		t.Fatal("ViaOrderOut result missing")
	}
	if orderOut.ErrorCount != 1 {
		t.Fatalf("ViaOrderOut ErrorCount = %d, want 1", orderOut.ErrorCount)
	}
	found := false
	for _, msg := range orderOut.Errors {
		if strings.Contains(msg, "999") && strings.Contains(msg, "not found in client directory") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an error naming customer 999, got %v", orderOut.Errors)
	}
}

func TestLinking_ErroredItemStaysAvailableToLaterStrategies(t *testing.T) {
	// One item whose visit points at an unknown customer but whose order-out
	// header is resolvable: the visit strategy records the error, the
	// order-out strategy still links it.
	items := []*models.LegacyEquipmentItem{
		{OoiId: 601, OoId: intPtr(65), ItemId: intPtr(7)},
	}
	snap := NewLegacySnapshot(
		[]*models.LegacyVisit{{VisitingId: 12, CusId: intPtr(999)}},
		[]*models.LegacyVisitReportItem{{Id: 2, VisitingId: 12, OoiId: 601}},
		nil, nil, nil, nil,
		[]*models.LegacyOrderOut{{OoId: 65, CusId: intPtr(30)}},
	)
	idx := models.NewClientIndex(
		[]*models.Client{{Id: 3, Name: "Taunggyi Lab", LegacyCustomerId: intPtr(30)}},
		nil,
	)

	rec := newLinkRecorder()
	result := &models.EquipmentLinkingResult{StartTime: time.Now().UTC(), CorrelationId: "test-run"}
	executeLinking(context.Background(), items, snap, idx, false, rec.commit, result)

	link := rec.links[601]
	if link == nil {
		t.Fatal("equipment 601 should be linked by the order-out fallback")
	}
	if link.Method != models.LinkingMethodViaOrderOut || link.ClientId != 3 {
		t.Errorf("equipment 601 linked client=%d method=%s, want client=3 method=%s",
			link.ClientId, link.Method, models.LinkingMethodViaOrderOut)
	}
	if result.TotalErrors != 1 {
		t.Errorf("TotalErrors = %d, want 1 (the failed visit resolution still counts)", result.TotalErrors)
	}
	if result.TotalLinked != 1 {
		t.Errorf("TotalLinked = %d, want 1", result.TotalLinked)
	}
}

func TestLinking_CommitFailureDoesNotAbortRun(t *testing.T) {
	rec := newLinkRecorder()
	rec.failFor[303] = true
	result := runFixture(t, false, rec)

	if _, ok := rec.links[303]; ok {
		t.Error("equipment 303 must not be linked when its commit fails")
	}
	if result.TotalLinked != 3 {
		t.Errorf("TotalLinked = %d, want 3 (other items unaffected)", result.TotalLinked)
	}
	if !result.Success {
		t.Error("a single commit failure must not fail the whole run")
	}
	if result.TotalErrors != 2 {
		t.Errorf("TotalErrors = %d, want 2 (commit failure + unknown customer)", result.TotalErrors)
	}
}

func TestLinking_CanceledContextCommitsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, snap, idx := testFixture()
	rec := newLinkRecorder()
	result := &models.EquipmentLinkingResult{StartTime: time.Now().UTC(), CorrelationId: "test-run"}
	executeLinking(ctx, items, snap, idx, false, rec.commit, result)

	if len(rec.links) != 0 {
		t.Errorf("canceled run committed %d links, want 0", len(rec.links))
	}
	if result.Success {
		t.Error("canceled run must not report success")
	}
	if result.TotalLinked != 0 || result.TotalSkipped != 0 || result.TotalErrors != 0 {
		t.Errorf("canceled run tallied %d/%d/%d, want all zero",
			result.TotalLinked, result.TotalSkipped, result.TotalErrors)
	}
}

type panickyStrategy struct{}

func (panickyStrategy) Method() models.LinkingMethod { return models.LinkingMethodViaVisits }
func (panickyStrategy) ResolveAll(*LegacySnapshot, []*models.LegacyEquipmentItem) map[int]int {
	panic("boom")
}
func (panickyStrategy) Resolve(*LegacySnapshot, *models.LegacyEquipmentItem) (int, bool) {
	return 0, false
}

func TestLinking_StrategyPanicIsCaptured(t *testing.T) {
	res := resolveStrategy(panickyStrategy{}, &LegacySnapshot{}, nil)
	if res.err == nil {
		t.Fatal("expected a captured panic")
	}
	if !strings.Contains(res.err.Error(), "boom") {
		t.Errorf("captured error should carry the panic value, got %v", res.err)
	}
	if res.candidates != nil {
		t.Error("a panicked strategy must contribute no candidates")
	}
}

func TestVisitStrategy_LowestVisitWinsTie(t *testing.T) {
	// Two visits reference the same equipment; rows are fed in descending
	// order and the snapshot must still pick the lower visiting id.
	snap := NewLegacySnapshot(
		[]*models.LegacyVisit{
			{VisitingId: 40, CusId: intPtr(20)},
			{VisitingId: 15, CusId: intPtr(10)},
		},
		[]*models.LegacyVisitReportItem{
			{Id: 5, VisitingId: 40, OoiId: 700},
			{Id: 6, VisitingId: 15, OoiId: 700},
		},
		nil, nil, nil, nil, nil,
	)
	cusId, ok := viaVisitsStrategy{}.Resolve(snap, &models.LegacyEquipmentItem{OoiId: 700, ItemId: intPtr(1)})
	if !ok || cusId != 10 {
		t.Errorf("Resolve = (%d, %v), want (10, true) via the lowest visit", cusId, ok)
	}
}

func TestVisitStrategy_SkipsDanglingReportRows(t *testing.T) {
	snap := NewLegacySnapshot(
		[]*models.LegacyVisit{
			{VisitingId: 30, CusId: intPtr(10)},
		},
		[]*models.LegacyVisitReportItem{
			{Id: 7, VisitingId: 9999, OoiId: 701}, // no such visit
			{Id: 8, VisitingId: 30, OoiId: 701},
		},
		nil, nil, nil, nil, nil,
	)
	cusId, ok := viaVisitsStrategy{}.Resolve(snap, &models.LegacyEquipmentItem{OoiId: 701, ItemId: intPtr(1)})
	if !ok || cusId != 10 {
		t.Errorf("Resolve = (%d, %v), want (10, true) past the dangling row", cusId, ok)
	}
}

func TestSalesStrategy_MissingHopIsSkipNotError(t *testing.T) {
	// invoice exists but its sales contract is gone
	snap := NewLegacySnapshot(
		nil, nil, nil, nil,
		[]*models.LegacySalesInvoice{{SiId: 90, ScId: intPtr(500), OoId: intPtr(66)}},
		nil, nil,
	)
	_, ok := viaSalesInvoicesStrategy{}.Resolve(snap, &models.LegacyEquipmentItem{OoiId: 800, OoId: intPtr(66), ItemId: intPtr(1)})
	if ok {
		t.Error("a broken invoice chain must be a skip, not a match")
	}
}
