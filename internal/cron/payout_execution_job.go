package cron

import (
	"context"
	"fmt"

	"github.com/mfigueroa/bazario-backend/internal/payouts"
)

// PayoutExecutionJob retries every pending or failed payout. Vendors still
// gated on onboarding are skipped inside the service, not treated as errors.
type PayoutExecutionJob struct {
	payouts payouts.Service
}

// NewPayoutExecutionJob builds the execution job.
func NewPayoutExecutionJob(svc payouts.Service) (*PayoutExecutionJob, error) {
	if svc == nil {
		return nil, fmt.Errorf("payouts service required")
	}
	return &PayoutExecutionJob{payouts: svc}, nil
}

// Name implements Job.
func (j *PayoutExecutionJob) Name() string {
	return "payout_execution"
}

// Run implements Job.
func (j *PayoutExecutionJob) Run(ctx context.Context) error {
	return j.payouts.ExecuteDue(ctx)
}
