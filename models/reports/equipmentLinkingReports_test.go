package reports

import (
	"strings"
	"testing"
	"time"

	"bitbucket.org/meditech/medlink_backend/models"
	"bitbucket.org/meditech/medlink_backend/workflow"
)

// DB-free tests over the pure report cores; the snapshot and directory are
// hand-built the same way the linking tests build them.

func intPtr(v int) *int { return &v }

func visitSnapshot(ooiId, visitingId, cusId int) *workflow.LegacySnapshot {
	return workflow.NewLegacySnapshot(
		[]*models.LegacyVisit{{VisitingId: visitingId, CusId: intPtr(cusId)}},
		[]*models.LegacyVisitReportItem{{Id: 1, VisitingId: visitingId, OoiId: ooiId}},
		nil, nil, nil, nil, nil,
	)
}

func singleClientIndex(clientId int64, cusId int) *models.ClientIndex {
	return models.NewClientIndex(
		[]*models.Client{{Id: clientId, Name: "Yangon General", LegacyCustomerId: intPtr(cusId)}},
		nil,
	)
}

func TestVerifyEquipment_CorroboratedLinkHasNoIssues(t *testing.T) {
	snap := visitSnapshot(101, 11, 10)
	idx := singleClientIndex(1, 10)
	client := &models.Client{Id: 1, Name: "Yangon General"}
	links := []*models.EquipmentLink{
		{EquipmentId: 101, ClientId: 1, Method: models.LinkingMethodViaVisits, LinkedAt: time.Now()},
	}
	equipment := map[int]*models.LegacyEquipmentItem{
		101: {OoiId: 101, ItemId: intPtr(1)},
	}

	result := verifyEquipment(client, links, equipment, snap, idx)

	if result.IssueCount != 0 {
		t.Fatalf("IssueCount = %d, want 0; issues: %v", result.IssueCount, result.Equipment[0].Issues)
	}
	ev := result.Equipment[0]
	if len(ev.CorroboratingMethods) != 1 || ev.CorroboratingMethods[0] != models.LinkingMethodViaVisits {
		t.Errorf("CorroboratingMethods = %v, want [%s]", ev.CorroboratingMethods, models.LinkingMethodViaVisits)
	}
}

func TestVerifyEquipment_EvidenceMovedToAnotherClient(t *testing.T) {
	// the visit now names customer 20, who belongs to client 2
	snap := visitSnapshot(101, 11, 20)
	idx := models.NewClientIndex(
		[]*models.Client{
			{Id: 1, Name: "Yangon General", LegacyCustomerId: intPtr(10)},
			{Id: 2, Name: "Mandalay Clinic", LegacyCustomerId: intPtr(20)},
		},
		nil,
	)
	client := &models.Client{Id: 1, Name: "Yangon General"}
	links := []*models.EquipmentLink{
		{EquipmentId: 101, ClientId: 1, Method: models.LinkingMethodViaVisits, LinkedAt: time.Now()},
	}
	equipment := map[int]*models.LegacyEquipmentItem{
		101: {OoiId: 101, ItemId: intPtr(1)},
	}

	result := verifyEquipment(client, links, equipment, snap, idx)

	if result.IssueCount != 1 {
		t.Fatalf("IssueCount = %d, want 1", result.IssueCount)
	}
	ev := result.Equipment[0]
	if len(ev.CorroboratingMethods) != 0 {
		t.Errorf("CorroboratingMethods = %v, want none", ev.CorroboratingMethods)
	}
	joined := strings.Join(ev.Issues, "; ")
	if !strings.Contains(joined, "resolves to client 2") {
		t.Errorf("issues should name the diverging client: %v", ev.Issues)
	}
	if !strings.Contains(joined, "no method corroborates") {
		t.Errorf("issues should flag the lost corroboration: %v", ev.Issues)
	}
}

func TestVerifyEquipment_OriginalMethodLostButAnotherHolds(t *testing.T) {
	// visit evidence is gone; the order-out header still supports the link
	snap := workflow.NewLegacySnapshot(
		nil, nil, nil, nil, nil, nil,
		[]*models.LegacyOrderOut{{OoId: 61, CusId: intPtr(10)}},
	)
	idx := singleClientIndex(1, 10)
	client := &models.Client{Id: 1, Name: "Yangon General"}
	links := []*models.EquipmentLink{
		{EquipmentId: 101, ClientId: 1, Method: models.LinkingMethodViaVisits, LinkedAt: time.Now()},
	}
	equipment := map[int]*models.LegacyEquipmentItem{
		101: {OoiId: 101, OoId: intPtr(61), ItemId: intPtr(1)},
	}

	result := verifyEquipment(client, links, equipment, snap, idx)

	ev := result.Equipment[0]
	if len(ev.CorroboratingMethods) != 1 || ev.CorroboratingMethods[0] != models.LinkingMethodViaOrderOut {
		t.Fatalf("CorroboratingMethods = %v, want [%s]", ev.CorroboratingMethods, models.LinkingMethodViaOrderOut)
	}
	if result.IssueCount != 1 {
		t.Fatalf("IssueCount = %d, want 1 (original method lost)", result.IssueCount)
	}
	if !strings.Contains(strings.Join(ev.Issues, "; "), "no longer corroborates") {
		t.Errorf("issues should flag the original method: %v", ev.Issues)
	}
}

func TestVerifyEquipment_MissingLegacyRow(t *testing.T) {
	snap := workflow.NewLegacySnapshot(nil, nil, nil, nil, nil, nil, nil)
	idx := singleClientIndex(1, 10)
	client := &models.Client{Id: 1, Name: "Yangon General"}
	links := []*models.EquipmentLink{
		{EquipmentId: 999, ClientId: 1, Method: models.LinkingMethodViaOrderOut, LinkedAt: time.Now()},
	}

	result := verifyEquipment(client, links, map[int]*models.LegacyEquipmentItem{}, snap, idx)

	if result.IssueCount != 1 {
		t.Fatalf("IssueCount = %d, want 1", result.IssueCount)
	}
	if !strings.Contains(result.Equipment[0].Issues[0], "no longer exists") {
		t.Errorf("unexpected issue: %v", result.Equipment[0].Issues)
	}
}

func TestApplyLinkCounts_StaysConsistent(t *testing.T) {
	diag := &models.EquipmentLinkingDiagnostics{
		EquipmentWithLegacySourceId: 100,
		LinksByMethod:               map[models.LinkingMethod]int64{},
	}
	applyLinkCounts(diag, []*linksByMethodRow{
		{Method: models.LinkingMethodViaVisits, Total: 40},
		{Method: models.LinkingMethodViaOrderOut, Total: 25},
	})
	if diag.EquipmentLinked != 65 || diag.EquipmentUnlinked != 35 {
		t.Errorf("linked/unlinked = %d/%d, want 65/35", diag.EquipmentLinked, diag.EquipmentUnlinked)
	}

	// more links than the legacy extract carries must not go negative
	stale := &models.EquipmentLinkingDiagnostics{
		EquipmentWithLegacySourceId: 10,
		LinksByMethod:               map[models.LinkingMethod]int64{},
	}
	applyLinkCounts(stale, []*linksByMethodRow{{Method: models.LinkingMethodViaVisits, Total: 12}})
	if stale.EquipmentUnlinked != 0 {
		t.Errorf("EquipmentUnlinked = %d, want 0", stale.EquipmentUnlinked)
	}
}

func TestUnlinkedReason_Buckets(t *testing.T) {
	idx := singleClientIndex(1, 10)
	snapWithVisit := visitSnapshot(101, 11, 10)
	snapUnknownCustomer := visitSnapshot(102, 12, 999)
	empty := workflow.NewLegacySnapshot(nil, nil, nil, nil, nil, nil, nil)

	cases := []struct {
		name string
		snap *workflow.LegacySnapshot
		item *models.LegacyEquipmentItem
		want string
	}{
		{"no source id", empty, &models.LegacyEquipmentItem{OoiId: 100}, "no legacy source id"},
		{"no evidence", empty, &models.LegacyEquipmentItem{OoiId: 100, ItemId: intPtr(1)}, "all strategies skipped"},
		{"unknown customer", snapUnknownCustomer, &models.LegacyEquipmentItem{OoiId: 102, ItemId: intPtr(1)}, "not found in client directory"},
		{"resolvable", snapWithVisit, &models.LegacyEquipmentItem{OoiId: 101, ItemId: intPtr(1)}, "awaiting linking run"},
	}
	for _, tc := range cases {
		got := unlinkedReason(tc.snap, idx, tc.item)
		if !strings.Contains(got, tc.want) {
			t.Errorf("%s: reason = %q, want it to contain %q", tc.name, got, tc.want)
		}
	}
}
