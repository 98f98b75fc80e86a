package auditlog

import (
	"context"

	"github.com/MarkoPoloResearchLab/settlement/pkg/settlement"
	"go.uber.org/zap"
)

// Logger writes every dispatched settlement operation as a structured zap entry.
type Logger struct {
	logger *zap.Logger
}

// New returns a Logger; a nil zap logger discards entries.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("settlement")}
}

func (auditLogger *Logger) LogOperation(_ context.Context, entry settlement.OperationLog) {
	reservationIDs := make([]string, 0, len(entry.ReservationIDs))
	for _, reservationID := range entry.ReservationIDs {
		reservationIDs = append(reservationIDs, reservationID.String())
	}
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("reservation_type", entry.ReservationType.String()),
		zap.String("merchant_ref", entry.MerchantRef.String()),
		zap.Strings("reservation_ids", reservationIDs),
		zap.Int64("amount", entry.Amount.Int64()),
		zap.String("payment_status", entry.PaymentStatus.String()),
		zap.String("status", entry.Status),
	}
	if entry.Reason != "" {
		fields = append(fields, zap.String("reason", entry.Reason))
	}
	if entry.Error != nil {
		auditLogger.logger.Warn("settlement operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	auditLogger.logger.Info("settlement operation", fields...)
}
