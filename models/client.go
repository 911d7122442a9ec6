package models

import (
	"context"
	"fmt"

	"bitbucket.org/meditech/medlink_backend/config"
	"bitbucket.org/meditech/medlink_backend/utils"
)

// Client is the current-system client record. The linking engine reads only
// the two legacy-compatible keys and never mutates client attributes; client
// CRUD lives elsewhere.
type Client struct {
	Id               int64   `gorm:"primary_key" json:"id"`
	Name             string  `gorm:"size:200;not null" json:"name"`
	LegacyCustomerId *int    `gorm:"index" json:"legacy_customer_id"`
	RelatedUserId    *int    `gorm:"index" json:"related_user_id"`
	Email            *string `gorm:"size:100" json:"email"`
	Phone            *string `gorm:"size:50" json:"phone"`
}

func (Client) TableName() string {
	return "clients"
}

// ClientIndex resolves a legacy cus_id to a current client id using the two
// acceptable keys: the migrated legacy customer id, falling back to the
// legacy customer -> user association joined against related_user_id.
type ClientIndex struct {
	byLegacyCustomerId map[int]int64
	byRelatedUserId    map[int]int64
	userIdByCusId      map[int]int
}

// NewClientIndex builds an index from already-loaded rows. Used directly by
// tests; LoadClientIndex is the DB-backed constructor.
func NewClientIndex(clients []*Client, associations []*LegacyCustomerUser) *ClientIndex {
	idx := &ClientIndex{
		byLegacyCustomerId: make(map[int]int64, len(clients)),
		byRelatedUserId:    make(map[int]int64),
		userIdByCusId:      make(map[int]int, len(associations)),
	}
	for _, c := range clients {
		if c.LegacyCustomerId != nil && *c.LegacyCustomerId != 0 {
			// lowest client id wins when the directory has duplicates,
			// independent of load order
			if existing, ok := idx.byLegacyCustomerId[*c.LegacyCustomerId]; !ok || c.Id < existing {
				idx.byLegacyCustomerId[*c.LegacyCustomerId] = c.Id
			}
		}
		if c.RelatedUserId != nil && *c.RelatedUserId != 0 {
			if existing, ok := idx.byRelatedUserId[*c.RelatedUserId]; !ok || c.Id < existing {
				idx.byRelatedUserId[*c.RelatedUserId] = c.Id
			}
		}
	}
	for _, a := range associations {
		if a.CusId != 0 && a.UserId != 0 {
			if _, ok := idx.userIdByCusId[a.CusId]; !ok {
				idx.userIdByCusId[a.CusId] = a.UserId
			}
		}
	}
	return idx
}

// LoadClientIndex reads the client directory and the legacy user association
// table and builds the in-memory two-key index.
func LoadClientIndex(ctx context.Context) (*ClientIndex, error) {
	clients, err := utils.FetchAllModels[Client](ctx)
	if err != nil {
		return nil, err
	}

	legacyDb := config.GetLegacyDB()
	var associations []*LegacyCustomerUser
	if err := legacyDb.WithContext(ctx).Order("id ASC").Find(&associations).Error; err != nil {
		return nil, err
	}

	return NewClientIndex(clients, associations), nil
}

// Resolve maps a legacy cus_id to a client id. The migrated legacy customer
// id wins; the user-association fallback is consulted only when no client
// carries the migrated id. When both paths exist and name different clients,
// the directory is inconsistent and the item is a resolution error rather
// than a guess.
func (idx *ClientIndex) Resolve(cusId int) (int64, error) {
	if cusId == 0 {
		return 0, fmt.Errorf("legacy customer id is zero")
	}

	direct, hasDirect := idx.byLegacyCustomerId[cusId]

	var viaUser int64
	hasViaUser := false
	if userId, ok := idx.userIdByCusId[cusId]; ok {
		if clientId, ok := idx.byRelatedUserId[userId]; ok {
			viaUser = clientId
			hasViaUser = true
		}
	}

	switch {
	case hasDirect && hasViaUser && direct != viaUser:
		return 0, fmt.Errorf("legacy customer id %d resolves to conflicting clients %d and %d", cusId, direct, viaUser)
	case hasDirect:
		return direct, nil
	case hasViaUser:
		return viaUser, nil
	default:
		return 0, fmt.Errorf("legacy customer id %d not found in client directory", cusId)
	}
}

// CountsByKey reports how many clients carry each resolution key; consumed by
// the diagnostics report.
func (idx *ClientIndex) CountsByKey() (withLegacyCustomerId int64, withRelatedUserId int64) {
	return int64(len(idx.byLegacyCustomerId)), int64(len(idx.byRelatedUserId))
}

// GetClientById fetches one client.
func GetClientById(ctx context.Context, clientId int64) (*Client, error) {
	client, err := utils.FetchModel[Client](ctx, clientId)
	if err != nil {
		return nil, fmt.Errorf("client %d: %w", clientId, err)
	}
	return client, nil
}
