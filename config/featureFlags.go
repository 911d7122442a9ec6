package config

import (
	"os"
	"strings"
)

func flagEnabled(envKey string) bool {
	v := strings.TrimSpace(os.Getenv(envKey))
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}

// ReportCacheEnabled gates the redis cache in front of the diagnostics report.
func ReportCacheEnabled() bool {
	return flagEnabled("ENABLE_REPORT_CACHE")
}

// ConcurrentStrategiesEnabled runs the four linking strategies in parallel.
// Results are identical either way; commits are always serialized by priority.
func ConcurrentStrategiesEnabled() bool {
	return flagEnabled("ENABLE_CONCURRENT_STRATEGIES")
}

// RunSummaryPubSubEnabled publishes a linking run summary to the ops topic.
func RunSummaryPubSubEnabled() bool {
	return flagEnabled("ENABLE_RUN_SUMMARY_PUBSUB")
}
