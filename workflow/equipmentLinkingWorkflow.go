package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/meditech/medlink_backend/config"
	"bitbucket.org/meditech/medlink_backend/models"
	"bitbucket.org/meditech/medlink_backend/utils"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	runLockKey = "equipment-linking:run"
	runLockTTL = 15 * time.Minute

	// last completed run's correlation id, surfaced by diagnostics
	lastRunKey = "equipment-linking:last-run"

	// resolution errors kept per strategy before truncation
	maxStrategyErrors = 50
)

// RunOptions controls one linking run.
type RunOptions struct {
	// Scope restricts the run to the given ooi_ids (empty = full unlinked set).
	Scope []int
	// Relink deletes the existing links for the scoped set first. Destructive;
	// must be requested explicitly.
	Relink bool
	// DryRun evaluates and tallies everything but commits nothing.
	DryRun bool
}

// linkCommitter abstracts the conditional link insert so the run core can be
// exercised without a database.
type linkCommitter func(ctx context.Context, link *models.EquipmentLink) (bool, error)

// RunLinking reconciles legacy equipment against the client directory. It
// never lets an error or panic escape: every failure is captured into the
// returned result, and a single failed strategy never aborts the run.
func RunLinking(ctx context.Context, opts RunOptions) *models.EquipmentLinkingResult {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := config.GetLogger()

	correlationId, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || correlationId == "" {
		correlationId = uuid.NewString()
	}

	result := &models.EquipmentLinkingResult{
		DryRun:        opts.DryRun,
		StartTime:     time.Now().UTC(),
		CorrelationId: correlationId,
	}

	// Single-runner lock. Best-effort: correctness does not depend on it, the
	// conditional insert enforces at-most-one-link either way.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, runLockKey, runLockTTL, nil)
		if err == redislock.ErrNotObtained {
			result.Success = true
			result.Warnings = append(result.Warnings, "another linking run is in progress; nothing was linked")
			result.EndTime = time.Now().UTC()
			return result
		}
		if err == nil {
			defer lock.Release(context.Background())
		}
	}

	if opts.Relink && !opts.DryRun {
		removed, err := models.DeleteEquipmentLinks(ctx, opts.Scope)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("relink: failed to remove existing links: %v", err))
			result.EndTime = time.Now().UTC()
			return result
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("relink: removed %d existing links before re-evaluation", removed))
	}

	items, err := models.GetUnlinkedLegacyEquipment(ctx, opts.Scope)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to load unlinked equipment: %v", err))
		result.EndTime = time.Now().UTC()
		return result
	}
	snap, err := LoadLegacySnapshot(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to load legacy snapshot: %v", err))
		result.EndTime = time.Now().UTC()
		return result
	}
	idx, err := models.LoadClientIndex(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to load client index: %v", err))
		result.EndTime = time.Now().UTC()
		return result
	}

	commit := linkCommitter(models.InsertEquipmentLinkIfAbsent)
	if opts.DryRun {
		commit = func(ctx context.Context, link *models.EquipmentLink) (bool, error) { return true, nil }
	}

	executeLinking(ctx, items, snap, idx, config.ConcurrentStrategiesEnabled(), commit, result)
	result.EndTime = time.Now().UTC()

	if !opts.DryRun && result.Success {
		if err := config.SetRedisValue(lastRunKey, correlationId, 0); err != nil && logger != nil {
			config.LogError(logger, "equipmentLinkingWorkflow.go", "RunLinking", "record last run", nil, err)
		}
	}

	if logger != nil {
		userId, _ := utils.GetUserIdFromContext(ctx)
		logger.WithFields(logrus.Fields{
			"module":         "equipmentLinking",
			"correlation_id": correlationId,
			"user_id":        userId,
			"scope_size":     len(opts.Scope),
			"dry_run":        opts.DryRun,
			"total_linked":   result.TotalLinked,
			"total_skipped":  result.TotalSkipped,
			"total_errors":   result.TotalErrors,
			"success":        result.Success,
			"duration_ms":    result.EndTime.Sub(result.StartTime).Milliseconds(),
		}).Info("equipment linking run completed")
	}

	if config.RunSummaryPubSubEnabled() && !opts.DryRun {
		if err := config.PublishLinkingRunSummary(ctx, &config.LinkingRunSummaryMessage{
			CorrelationId: correlationId,
			Success:       result.Success,
			TotalLinked:   result.TotalLinked,
			TotalSkipped:  result.TotalSkipped,
			TotalErrors:   result.TotalErrors,
			StartTime:     result.StartTime,
			EndTime:       result.EndTime,
		}); err != nil && logger != nil {
			config.LogError(logger, "equipmentLinkingWorkflow.go", "RunLinking", "publish run summary", nil, err)
		}
	}

	return result
}

// strategyResolution is one strategy's resolve pass: candidates, timing, and
// the captured fault if the pass blew up.
type strategyResolution struct {
	method     models.LinkingMethod
	candidates map[int]int
	duration   time.Duration
	err        error
}

func resolveStrategy(s LinkingStrategy, snap *LegacySnapshot, items []*models.LegacyEquipmentItem) (res strategyResolution) {
	res.method = s.Method()
	started := time.Now()
	defer func() {
		res.duration = time.Since(started)
		if r := recover(); r != nil {
			res.candidates = nil
			res.err = fmt.Errorf("strategy %s panicked: %v", s.Method(), r)
		}
	}()
	res.candidates = s.ResolveAll(snap, items)
	return res
}

// executeLinking runs the resolve and commit phases over an already-loaded
// input set. Strategies may resolve concurrently (they read disjoint legacy
// tables); commits are always serialized in priority order so the first
// successful method wins deterministically rather than by completion race.
func executeLinking(
	ctx context.Context,
	items []*models.LegacyEquipmentItem,
	snap *LegacySnapshot,
	idx *models.ClientIndex,
	concurrent bool,
	commit linkCommitter,
	result *models.EquipmentLinkingResult,
) {
	strategies := LinkingStrategies()
	resolutions := make([]strategyResolution, len(strategies))

	if concurrent {
		var wg sync.WaitGroup
		for i, s := range strategies {
			wg.Add(1)
			go func(i int, s LinkingStrategy) {
				defer wg.Done()
				resolutions[i] = resolveStrategy(s, snap, items)
			}(i, s)
		}
		wg.Wait()
	} else {
		for i, s := range strategies {
			resolutions[i] = resolveStrategy(s, snap, items)
		}
	}

	linkedAt := time.Now().UTC()
	claimed := make(map[int]bool)
	failedStrategies := 0

	for _, res := range resolutions {
		mr := &models.LinkingMethodResult{Method: res.method, Success: true, Duration: res.duration}
		result.MethodResults = append(result.MethodResults, mr)

		if res.err != nil {
			mr.Success = false
			mr.ErrorMessage = res.err.Error()
			result.Errors = append(result.Errors, res.err.Error())
			failedStrategies++
			continue
		}
		// Cancellation is honored between strategies; completed strategies
		// keep their committed links.
		if ctx.Err() != nil {
			mr.Success = false
			mr.ErrorMessage = "run canceled before this strategy committed"
			failedStrategies++
			continue
		}

		for _, item := range items {
			if claimed[item.OoiId] {
				continue
			}
			cusId, ok := res.candidates[item.OoiId]
			if !ok {
				mr.SkippedCount++
				continue
			}
			clientId, err := idx.Resolve(cusId)
			if err != nil {
				mr.ErrorCount++
				appendStrategyError(mr, fmt.Sprintf("equipment %d: %v", item.OoiId, err))
				continue
			}
			inserted, err := commit(ctx, &models.EquipmentLink{
				EquipmentId:   item.OoiId,
				ClientId:      clientId,
				Method:        res.method,
				LinkedAt:      linkedAt,
				CorrelationId: result.CorrelationId,
			})
			if err != nil {
				mr.ErrorCount++
				appendStrategyError(mr, fmt.Sprintf("equipment %d: commit failed: %v", item.OoiId, err))
				continue
			}
			claimed[item.OoiId] = true
			if inserted {
				mr.LinkedCount++
			} else {
				// a link from a prior run slipped in; the conditional insert
				// kept it, this run counts the item as skipped
				mr.SkippedCount++
			}
		}
	}

	for _, mr := range result.MethodResults {
		result.TotalLinked += mr.LinkedCount
		result.TotalSkipped += mr.SkippedCount
		result.TotalErrors += mr.ErrorCount
	}
	result.Success = failedStrategies < len(strategies)
	if ctx.Err() != nil {
		result.Warnings = append(result.Warnings, "run canceled; strategies that completed kept their links")
	}
}

func appendStrategyError(mr *models.LinkingMethodResult, msg string) {
	if len(mr.Errors) < maxStrategyErrors {
		mr.Errors = append(mr.Errors, msg)
		return
	}
	if len(mr.Errors) == maxStrategyErrors {
		mr.Errors = append(mr.Errors, "further errors truncated")
	}
}
