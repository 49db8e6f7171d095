package payouts

import (
	"context"
	"fmt"

	"github.com/mfigueroa/bazario-backend/pkg/db/models"
	"github.com/mfigueroa/bazario-backend/pkg/logger"
)

// loggingProvider stands in for the external payout processor. It accepts
// every transfer for a vendor with a provider reference and rejects the rest,
// which keeps the onboarding contract honest in environments without a real
// processor wired up.
type loggingProvider struct {
	logg *logger.Logger
}

// NewLoggingProvider returns the default TransferProvider used outside
// production payment environments.
func NewLoggingProvider(logg *logger.Logger) TransferProvider {
	return &loggingProvider{logg: logg}
}

func (p *loggingProvider) Transfer(ctx context.Context, vendor models.Vendor, payout models.Payout) error {
	if vendor.PayoutProviderRef == nil || *vendor.PayoutProviderRef == "" {
		return fmt.Errorf("vendor %s has no payout provider reference", vendor.ID)
	}
	if p.logg != nil {
		logCtx := p.logg.WithFields(ctx, map[string]any{
			"payout_id":    payout.ID.String(),
			"vendor_id":    vendor.ID.String(),
			"provider_ref": *vendor.PayoutProviderRef,
			"amount_cents": payout.AmountCents,
		})
		p.logg.Info(logCtx, "payout transfer accepted")
	}
	return nil
}
