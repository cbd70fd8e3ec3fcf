// Package worker runs the periodic dispatch and inbox sync passes.
package worker

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds how many workspaces one pass handles at once.
const DefaultParallelism = 4

// WorkspaceResult is the outcome of one workspace in a pass. A failure here
// never aborts the other workspaces.
type WorkspaceResult struct {
	WorkspaceID string `json:"workspaceId"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	Skipped     string `json:"skipped,omitempty"`

	Processed int `json:"processed"`
	Sent      int `json:"sent,omitempty"`
	Retried   int `json:"retried,omitempty"`
	Failed    int `json:"failed,omitempty"`
	Deferred  int `json:"deferred,omitempty"`
	Cancelled int `json:"cancelled,omitempty"`
	Lost      int `json:"lost,omitempty"`
	Matched   int `json:"matched,omitempty"`
	Unlinked  int `json:"unlinked,omitempty"`
	Errors    int `json:"errors"`

	Duration time.Duration `json:"-"`
	Millis   int64         `json:"durationMs"`
}

// Summary aggregates a pass over every workspace.
type Summary struct {
	TotalWorkspaces int               `json:"totalWorkspaces"`
	Successful      int               `json:"successful"`
	Failed          int               `json:"failed"`
	TotalProcessed  int               `json:"totalProcessed"`
	TotalMatched    int               `json:"totalMatched"`
	TotalUnlinked   int               `json:"totalUnlinked"`
	TotalErrors     int               `json:"totalErrors"`
	Duration        string            `json:"duration"`
	Workspaces      []WorkspaceResult `json:"workspaces"`
}

func summarize(results []WorkspaceResult, elapsed time.Duration) *Summary {
	s := &Summary{
		TotalWorkspaces: len(results),
		Duration:        elapsed.Round(time.Millisecond).String(),
		Workspaces:      results,
	}
	for _, r := range results {
		if r.Success {
			s.Successful++
		} else {
			s.Failed++
		}
		s.TotalProcessed += r.Processed
		s.TotalMatched += r.Matched
		s.TotalUnlinked += r.Unlinked
		s.TotalErrors += r.Errors
	}
	return s
}

// forEachWorkspace runs fn for every workspace, at most limit at a time, and
// keeps results in the order of ids.
func forEachWorkspace(ctx context.Context, ids []string, limit int, fn func(ctx context.Context, workspaceID string) WorkspaceResult) []WorkspaceResult {
	if limit <= 0 {
		limit = DefaultParallelism
	}
	results := make([]WorkspaceResult, len(ids))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			start := time.Now()
			r := fn(ctx, id)
			r.WorkspaceID = id
			r.Duration = time.Since(start)
			r.Millis = r.Duration.Milliseconds()
			if !r.Success {
				log.Printf("❌ Workspace %s failed: %s", id, r.Error)
			}
			results[i] = r
			return nil
		})
	}
	g.Wait()
	return results
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
