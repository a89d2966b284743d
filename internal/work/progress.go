package work

import "context"

// ProgressFunc reports a run's coarse progress: a stage label and a
// fraction in [0, 1].
type ProgressFunc func(stage string, fraction float64)

type progressKey struct{}

// withProgress attaches a reporter to the runner's context.
func withProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// Progress reports progress for the run bound to ctx. A no-op outside the
// queue, so runners stay directly callable in tests.
func Progress(ctx context.Context, stage string, fraction float64) {
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok {
		fn(stage, fraction)
	}
}
