package utils

import (
	"context"

	"bitbucket.org/meditech/medlink_backend/config"
)

/* DB fetching */

// fetch model from current db by primary key
// (may return RecordNotFound)
func FetchModel[T any](ctx context.Context, id any, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}

// fetch all models from current db
func FetchAllModels[T any](ctx context.Context, associations ...string) ([]*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var results []*T
	err := dbCtx.Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// fetch model from the frozen legacy db by primary key
// (may return RecordNotFound)
func FetchLegacyModel[T any](ctx context.Context, id any) (*T, error) {

	db := config.GetLegacyDB()
	var result T
	err := db.WithContext(ctx).First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}
