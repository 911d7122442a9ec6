package models

import (
	"strings"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestClientIndex_DirectKeyWins(t *testing.T) {
	idx := NewClientIndex(
		[]*Client{
			{Id: 1, Name: "Yangon General", LegacyCustomerId: intPtr(10)},
			{Id: 2, Name: "Mandalay Clinic", RelatedUserId: intPtr(55)},
		},
		[]*LegacyCustomerUser{{Id: 1, CusId: 10, UserId: 55}},
	)

	// both paths resolve customer 10; they disagree, which is a conflict
	if _, err := idx.Resolve(10); err == nil {
		t.Fatal("conflicting resolutions must error, not guess")
	} else if !strings.Contains(err.Error(), "conflicting clients 1 and 2") {
		t.Errorf("error should name both clients: %v", err)
	}
}

func TestClientIndex_FallbackViaUserAssociation(t *testing.T) {
	idx := NewClientIndex(
		[]*Client{{Id: 2, Name: "Mandalay Clinic", RelatedUserId: intPtr(55)}},
		[]*LegacyCustomerUser{{Id: 1, CusId: 10, UserId: 55}},
	)

	clientId, err := idx.Resolve(10)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if clientId != 2 {
		t.Errorf("Resolve = %d, want 2 via the user association", clientId)
	}
}

func TestClientIndex_AgreementIsNotAConflict(t *testing.T) {
	idx := NewClientIndex(
		[]*Client{{Id: 1, Name: "Yangon General", LegacyCustomerId: intPtr(10), RelatedUserId: intPtr(55)}},
		[]*LegacyCustomerUser{{Id: 1, CusId: 10, UserId: 55}},
	)

	clientId, err := idx.Resolve(10)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if clientId != 1 {
		t.Errorf("Resolve = %d, want 1", clientId)
	}
}

func TestClientIndex_UnknownCustomer(t *testing.T) {
	idx := NewClientIndex(nil, nil)
	if _, err := idx.Resolve(999); err == nil || !strings.Contains(err.Error(), "not found in client directory") {
		t.Errorf("unexpected error for unknown customer: %v", err)
	}
	if _, err := idx.Resolve(0); err == nil {
		t.Error("customer id zero must error")
	}
}

func TestClientIndex_DuplicateKeyPicksLowestClientId(t *testing.T) {
	// fed in descending order on purpose
	idx := NewClientIndex(
		[]*Client{
			{Id: 7, Name: "Duplicate B", LegacyCustomerId: intPtr(10)},
			{Id: 3, Name: "Duplicate A", LegacyCustomerId: intPtr(10)},
		},
		nil,
	)

	clientId, err := idx.Resolve(10)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if clientId != 3 {
		t.Errorf("Resolve = %d, want the lowest client id 3", clientId)
	}
}

func TestClientIndex_CountsByKey(t *testing.T) {
	idx := NewClientIndex(
		[]*Client{
			{Id: 1, LegacyCustomerId: intPtr(10)},
			{Id: 2, LegacyCustomerId: intPtr(20), RelatedUserId: intPtr(55)},
			{Id: 3},
		},
		nil,
	)
	withCusId, withUserId := idx.CountsByKey()
	if withCusId != 2 || withUserId != 1 {
		t.Errorf("CountsByKey = (%d, %d), want (2, 1)", withCusId, withUserId)
	}
}
