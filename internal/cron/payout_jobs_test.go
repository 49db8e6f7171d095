package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mfigueroa/bazario-backend/internal/payouts"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
	"github.com/mfigueroa/bazario-backend/pkg/pagination"
)

type stubPayoutService struct {
	aggregateCalls int
	aggregateErr   error
	executeDueRuns int
	executeDueErr  error
	lastCutoff     time.Time
}

func (s *stubPayoutService) Aggregate(ctx context.Context, cutoff time.Time) ([]models.Payout, error) {
	s.aggregateCalls++
	s.lastCutoff = cutoff
	return nil, s.aggregateErr
}

func (s *stubPayoutService) Execute(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	return nil, nil
}

func (s *stubPayoutService) ExecuteDue(ctx context.Context) error {
	s.executeDueRuns++
	return s.executeDueErr
}

func (s *stubPayoutService) Summary(ctx context.Context, vendorID uuid.UUID) (*payouts.VendorSummary, error) {
	return nil, nil
}

func (s *stubPayoutService) ListVendorPayouts(ctx context.Context, vendorID uuid.UUID, params pagination.Params) ([]models.Payout, string, error) {
	return nil, "", nil
}

func TestPayoutAggregationJobRuns(t *testing.T) {
	stub := &stubPayoutService{}
	job, err := NewPayoutAggregationJob(stub)
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "payout_aggregation" {
		t.Fatalf("unexpected job name %q", job.Name())
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run job: %v", err)
	}
	if stub.aggregateCalls != 1 {
		t.Fatalf("expected one aggregate call, got %d", stub.aggregateCalls)
	}
	if stub.lastCutoff.IsZero() {
		t.Fatal("expected a cutoff timestamp")
	}
}

func TestPayoutExecutionJobPropagatesErrors(t *testing.T) {
	stub := &stubPayoutService{executeDueErr: errors.New("transfer backlog")}
	job, err := NewPayoutExecutionJob(stub)
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error from execution sweep")
	}
	if stub.executeDueRuns != 1 {
		t.Fatalf("expected one sweep, got %d", stub.executeDueRuns)
	}
}
