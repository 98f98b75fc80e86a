package auditlog

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/settlement/pkg/settlement"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogOperationWritesStructuredFields(test *testing.T) {
	test.Parallel()
	core, recorded := observer.New(zapcore.DebugLevel)
	logger := New(zap.New(core))
	merchantRef, err := settlement.NewMerchantRef("ACC-1")
	if err != nil {
		test.Fatalf("merchant ref: %v", err)
	}

	logger.LogOperation(context.Background(), settlement.OperationLog{
		Operation:       "verify",
		ReservationType: settlement.ReservationTypeLodging,
		MerchantRef:     merchantRef,
		Amount:          200000,
		PaymentStatus:   settlement.PaymentStatusFailed,
		Reason:          settlement.ReasonAmountMismatch,
		Status:          "ok",
	})
	logger.LogOperation(context.Background(), settlement.OperationLog{
		Operation:       "prepare",
		ReservationType: settlement.ReservationTypeLodging,
		Status:          "error",
		Error:           errors.New("insufficient stock"),
	})

	entries := recorded.AllUntimed()
	if len(entries) != 2 {
		test.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0].ContextMap()
	if entries[0].Level != zapcore.InfoLevel || first["merchant_ref"] != "ACC-1" || first["reason"] != settlement.ReasonAmountMismatch {
		test.Fatalf("unexpected first entry %v %v", entries[0].Level, first)
	}
	if entries[0].LoggerName != "settlement" {
		test.Fatalf("unexpected logger name %q", entries[0].LoggerName)
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["error"] != "insufficient stock" {
		test.Fatalf("unexpected second entry %v %v", entries[1].Level, entries[1].ContextMap())
	}
}

func TestNewToleratesNilLogger(test *testing.T) {
	test.Parallel()
	New(nil).LogOperation(context.Background(), settlement.OperationLog{Operation: "fail"})
}
