package app

import (
	"context"
	"fmt"
	"io"
)

// RunOnce executes a single pass of one cycle and prints its counts.
func (a *App) RunOnce(ctx context.Context, cycle string, out io.Writer) error {
	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	stats, err := rt.svc.RunOnce(ctx, cycle)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: candidates=%d sent=%d skipped=%d failed=%d\n", cycle, stats.Candidates, stats.Sent, stats.Skipped, stats.Failed)
	return nil
}
