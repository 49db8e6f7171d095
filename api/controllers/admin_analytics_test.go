package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	analyticssvc "github.com/mfigueroa/bazario-backend/internal/analytics"
	pkgerrors "github.com/mfigueroa/bazario-backend/pkg/errors"
)

type stubAnalyticsService struct {
	overviewFn func(ctx context.Context, period analyticssvc.Period) (*analyticssvc.Overview, error)
}

func (s stubAnalyticsService) Overview(ctx context.Context, period analyticssvc.Period) (*analyticssvc.Overview, error) {
	if s.overviewFn != nil {
		return s.overviewFn(ctx, period)
	}
	return &analyticssvc.Overview{Period: period}, nil
}

func TestAdminAnalyticsDefaultsPeriod(t *testing.T) {
	var captured analyticssvc.Period
	svc := stubAnalyticsService{
		overviewFn: func(_ context.Context, period analyticssvc.Period) (*analyticssvc.Overview, error) {
			captured = period
			return &analyticssvc.Overview{Period: period, RevenueCents: 16000}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	AdminAnalytics(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured != analyticssvc.Period30d {
		t.Fatalf("expected default period 30d got %s", captured)
	}

	var envelope struct {
		Data analyticssvc.Overview `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.RevenueCents != 16000 {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestAdminAnalyticsPropagatesValidation(t *testing.T) {
	svc := stubAnalyticsService{
		overviewFn: func(_ context.Context, period analyticssvc.Period) (*analyticssvc.Overview, error) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown period")
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/?period=14d", nil)
	resp := httptest.NewRecorder()
	AdminAnalytics(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
