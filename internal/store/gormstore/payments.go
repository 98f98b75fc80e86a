package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/settlement/pkg/settlement"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (store *Store) CreatePaymentMaster(ctx context.Context, master settlement.PaymentMaster) error {
	model := PaymentMaster{
		MerchantRef:     master.MerchantRef.String(),
		ReservationType: master.ReservationType.String(),
		UserID:          master.UserID.String(),
		TotalAmount:     master.TotalAmount.Int64(),
		PaymentMethod:   master.PaymentMethod,
		ApprovalID:      nullableApprovalID(master.ApprovalID),
		Status:          master.Status.String(),
		Reason:          master.Reason,
		CreatedAt:       master.CreatedAt.UTC(),
		UpdatedAt:       master.UpdatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectPayment, errorCodeDuplicate, settlement.ErrPaymentExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeCreate, err)
	}
	return nil
}

// GetPaymentMaster reads the master row with FOR UPDATE so a transaction
// holding it serializes confirm, fail and refund on the same checkout.
func (store *Store) GetPaymentMaster(ctx context.Context, merchantRef settlement.MerchantRef) (settlement.PaymentMaster, error) {
	var model PaymentMaster
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: lockingStrengthUpdate}).
		Where(merchantRefWhereClause, merchantRef.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return settlement.PaymentMaster{}, wrapStoreError(errorSubjectPayment, errorCodeGet, settlement.ErrUnknownPayment)
		}
		return settlement.PaymentMaster{}, wrapStoreError(errorSubjectPayment, errorCodeGet, err)
	}
	master, err := mapPaymentMaster(model)
	if err != nil {
		return settlement.PaymentMaster{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	return master, nil
}

func (store *Store) FindPaymentMasterByApproval(ctx context.Context, approvalID string) (settlement.PaymentMaster, error) {
	if approvalID == "" {
		return settlement.PaymentMaster{}, wrapStoreError(errorSubjectPayment, errorCodeGet, settlement.ErrUnknownPayment)
	}
	var model PaymentMaster
	err := store.db.WithContext(ctx).Where("approval_id = ?", approvalID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return settlement.PaymentMaster{}, wrapStoreError(errorSubjectPayment, errorCodeGet, settlement.ErrUnknownPayment)
		}
		return settlement.PaymentMaster{}, wrapStoreError(errorSubjectPayment, errorCodeGet, err)
	}
	master, err := mapPaymentMaster(model)
	if err != nil {
		return settlement.PaymentMaster{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	return master, nil
}

func (store *Store) UpdatePaymentMaster(ctx context.Context, master settlement.PaymentMaster, from settlement.PaymentStatus) error {
	updatedAt := master.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	result := store.db.WithContext(ctx).
		Model(&PaymentMaster{}).
		Where(paymentMasterWhereClause, master.MerchantRef.String(), from.String()).
		Updates(map[string]any{
			"status":         master.Status.String(),
			"total_amount":   master.TotalAmount.Int64(),
			"payment_method": master.PaymentMethod,
			"approval_id":    nullableApprovalID(master.ApprovalID),
			"reason":         master.Reason,
			"updated_at":     updatedAt,
		})
	if isUniqueViolation(result.Error) {
		return wrapStoreError(errorSubjectPayment, errorCodeDuplicate, settlement.ErrApprovalInUse)
	}
	if result.Error != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPayment, errorCodeUpdate, settlement.ErrPaymentStateChanged)
	}
	return nil
}

func (store *Store) InsertPaymentDetails(ctx context.Context, details []settlement.PaymentDetail) error {
	if len(details) == 0 {
		return nil
	}
	models := make([]PaymentDetail, 0, len(details))
	for _, detail := range details {
		models = append(models, PaymentDetail{
			MerchantRef:     detail.MerchantRef.String(),
			ReservationID:   detail.ReservationID.String(),
			ReservationType: detail.ReservationType.String(),
			Amount:          detail.Amount.Int64(),
			Status:          string(detail.Status),
			Reason:          detail.Reason,
		})
	}
	err := store.db.WithContext(ctx).Create(&models).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectPaymentDetail, errorCodeDuplicate, settlement.ErrPaymentExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPaymentDetail, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) ListPaymentDetails(ctx context.Context, merchantRef settlement.MerchantRef) ([]settlement.PaymentDetail, error) {
	var rows []PaymentDetail
	err := store.db.WithContext(ctx).
		Where(merchantRefWhereClause, merchantRef.String()).
		Order("reservation_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectPaymentDetail, errorCodeList, err)
	}
	details := make([]settlement.PaymentDetail, 0, len(rows))
	for _, row := range rows {
		detail, err := mapPaymentDetail(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectPaymentDetail, errorCodeInvalid, err)
		}
		details = append(details, detail)
	}
	return details, nil
}

func (store *Store) UpdatePaymentDetail(ctx context.Context, detail settlement.PaymentDetail, from settlement.DetailStatus) error {
	result := store.db.WithContext(ctx).
		Model(&PaymentDetail{}).
		Where(paymentDetailWhereClause, detail.MerchantRef.String(), detail.ReservationID.String(), string(from)).
		Updates(map[string]any{
			"status": string(detail.Status),
			"reason": detail.Reason,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectPaymentDetail, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectPaymentDetail, errorCodeUpdate, settlement.ErrPaymentStateChanged)
	}
	return nil
}

func mapPaymentMaster(model PaymentMaster) (settlement.PaymentMaster, error) {
	merchantRef, err := settlement.NewMerchantRef(model.MerchantRef)
	if err != nil {
		return settlement.PaymentMaster{}, err
	}
	reservationType, err := settlement.ParseReservationType(model.ReservationType)
	if err != nil {
		return settlement.PaymentMaster{}, err
	}
	userID, err := settlement.NewUserID(model.UserID)
	if err != nil {
		return settlement.PaymentMaster{}, err
	}
	status, err := settlement.ParsePaymentStatus(model.Status)
	if err != nil {
		return settlement.PaymentMaster{}, err
	}
	return settlement.PaymentMaster{
		MerchantRef:     merchantRef,
		ReservationType: reservationType,
		UserID:          userID,
		TotalAmount:     settlement.Amount(model.TotalAmount),
		PaymentMethod:   model.PaymentMethod,
		ApprovalID:      approvalIDOf(model.ApprovalID),
		Status:          status,
		Reason:          model.Reason,
		CreatedAt:       model.CreatedAt.UTC(),
		UpdatedAt:       model.UpdatedAt.UTC(),
	}, nil
}

func mapPaymentDetail(model PaymentDetail) (settlement.PaymentDetail, error) {
	merchantRef, err := settlement.NewMerchantRef(model.MerchantRef)
	if err != nil {
		return settlement.PaymentDetail{}, err
	}
	reservationID, err := settlement.NewReservationID(model.ReservationID)
	if err != nil {
		return settlement.PaymentDetail{}, err
	}
	reservationType, err := settlement.ParseReservationType(model.ReservationType)
	if err != nil {
		return settlement.PaymentDetail{}, err
	}
	return settlement.PaymentDetail{
		MerchantRef:     merchantRef,
		ReservationID:   reservationID,
		ReservationType: reservationType,
		Amount:          settlement.Amount(model.Amount),
		Status:          settlement.DetailStatus(model.Status),
		Reason:          model.Reason,
	}, nil
}

func nullableApprovalID(approvalID string) *string {
	if approvalID == "" {
		return nil
	}
	return &approvalID
}

func approvalIDOf(column *string) string {
	if column == nil {
		return ""
	}
	return *column
}
