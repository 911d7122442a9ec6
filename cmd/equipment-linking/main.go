package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"bitbucket.org/meditech/medlink_backend/config"
	"bitbucket.org/meditech/medlink_backend/models"
	"bitbucket.org/meditech/medlink_backend/workflow"
)

// One-shot linking run for operators and cron jobs. The API endpoint wraps
// the same workflow; this binary exists so a migration batch can run without
// the server being up.
func main() {
	scopeStr := flag.String("scope", "", "Optional: comma-separated ooi_ids to restrict the run")
	relink := flag.Bool("relink", false, "Delete existing links for the scope and re-evaluate (destructive)")
	dryRun := flag.Bool("dry-run", false, "Evaluate and tally without committing links")
	jsonOut := flag.Bool("json", false, "Print the full result as JSON instead of a summary")
	flag.Parse()

	var scope []int
	if strings.TrimSpace(*scopeStr) != "" {
		for _, part := range strings.Split(*scopeStr, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || id <= 0 {
				fmt.Fprintf(os.Stderr, "invalid ooi_id in -scope: %q\n", part)
				os.Exit(1)
			}
			scope = append(scope, id)
		}
	}
	if *relink && len(scope) == 0 && !*dryRun {
		fmt.Fprintln(os.Stderr, "-relink without -scope wipes every link; pass an explicit scope or run with -dry-run first")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil || config.GetLegacyDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := workflow.RunLinking(ctx, workflow.RunOptions{
		Scope:  scope,
		Relink: *relink,
		DryRun: *dryRun,
	})

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Printf("run %s: linked=%d skipped=%d errors=%d dry_run=%v success=%v\n",
			result.CorrelationId, result.TotalLinked, result.TotalSkipped, result.TotalErrors,
			result.DryRun, result.Success)
		for _, mr := range result.MethodResults {
			status := "ok"
			if !mr.Success {
				status = "FAILED: " + mr.ErrorMessage
			}
			fmt.Printf("  %-28s linked=%-6d skipped=%-6d errors=%-4d %s (%s)\n",
				mr.Method, mr.LinkedCount, mr.SkippedCount, mr.ErrorCount, status, mr.Duration)
		}
		for _, w := range result.Warnings {
			fmt.Println("  warning:", w)
		}
		for _, e := range result.Errors {
			fmt.Println("  error:", e)
		}
	}

	if !result.Success {
		os.Exit(1)
	}
}
