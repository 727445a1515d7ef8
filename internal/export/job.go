package export

import (
	"context"
	"fmt"

	"github.com/dvloznov/budget-insights/internal/jobs"
)

// HandleJob runs a queued export rebuild. A degraded build is not retried.
func (b *Builder) HandleJob(ctx context.Context, job *jobs.Job) error {
	if _, err := b.Build(ctx, job.UserID); err != nil {
		return fmt.Errorf("HandleJob: rebuilding export for %s: %w", job.UserID, err)
	}
	return nil
}
