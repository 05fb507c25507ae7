package order

import (
	"context"
	"encoding/json"

	"taverna-be/internal/logger"
	"taverna-be/internal/metrics"
	"taverna-be/internal/payment"

	"go.uber.org/zap"
)

// StatusUpdater applies canonical payment statuses onto orders. It is the
// payment.OrderUpdater the gateways are wired with.
type StatusUpdater struct {
	repo Repository
	mt   *metrics.PaymentMetrics
}

func NewStatusUpdater(repo Repository, mt *metrics.PaymentMetrics) *StatusUpdater {
	return &StatusUpdater{repo: repo, mt: mt}
}

var _ payment.OrderUpdater = (*StatusUpdater)(nil)

func (u *StatusUpdater) Apply(ctx context.Context, orderNumber string, status payment.Status, details map[string]interface{}) error {
	orderStatus := FromPaymentStatus(status)

	var raw []byte
	if details != nil {
		raw, _ = json.Marshal(details)
	}

	changed, err := u.repo.ApplyPaymentStatus(ctx, orderNumber, orderStatus, string(status), raw)
	if err != nil {
		logger.FromCtx(ctx).Error("failed applying payment status to order",
			zap.String("order_number", orderNumber),
			zap.String("payment_status", string(status)),
			zap.Error(err),
		)
		return err
	}

	if !changed {
		logger.FromCtx(ctx).Debug("order already at payment status",
			zap.String("order_number", orderNumber),
			zap.String("payment_status", string(status)),
		)
		return nil
	}

	if u.mt != nil {
		u.mt.RecordStatusTransition("order", string(orderStatus))
	}
	logger.FromCtx(ctx).Info("order moved by payment status",
		zap.String("order_number", orderNumber),
		zap.String("payment_status", string(status)),
		zap.String("order_status", string(orderStatus)),
	)
	return nil
}
