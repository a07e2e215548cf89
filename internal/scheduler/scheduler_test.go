package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uitrack/distributor-tracker/internal/tracker"
)

type countingPipeline struct {
	runs atomic.Int64
}

func (p *countingPipeline) Run(context.Context) (*tracker.RunSummary, error) {
	p.runs.Add(1)
	return &tracker.RunSummary{}, nil
}

type okHealth struct{}

func (okHealth) Current(context.Context) (tracker.Mapping, error) {
	return tracker.Mapping{}, nil
}

func TestNewRejectsZeroInterval(t *testing.T) {
	t.Parallel()

	_, err := New(&countingPipeline{}, okHealth{}, zap.NewNop(), Config{})
	require.Error(t, err)
}

func TestSchedulerRunsPipelineJob(t *testing.T) {
	t.Parallel()

	pipeline := &countingPipeline{}
	sched, err := New(pipeline, okHealth{}, zap.NewNop(), Config{
		ScrapeInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	sched.Start()
	defer func() { require.NoError(t, sched.Stop()) }()

	require.Eventually(t, func() bool {
		return pipeline.runs.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)
}
