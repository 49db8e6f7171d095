package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/mfigueroa/bazario-backend/internal/payouts"
)

// PayoutAggregationJob closes settlement periods for every vendor with
// unclaimed delivered items.
type PayoutAggregationJob struct {
	payouts payouts.Service
	now     func() time.Time
}

// NewPayoutAggregationJob builds the aggregation job.
func NewPayoutAggregationJob(svc payouts.Service) (*PayoutAggregationJob, error) {
	if svc == nil {
		return nil, fmt.Errorf("payouts service required")
	}
	return &PayoutAggregationJob{
		payouts: svc,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Name implements Job.
func (j *PayoutAggregationJob) Name() string {
	return "payout_aggregation"
}

// Run implements Job.
func (j *PayoutAggregationJob) Run(ctx context.Context) error {
	_, err := j.payouts.Aggregate(ctx, j.now())
	return err
}
