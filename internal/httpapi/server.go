package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/settlement/pkg/settlement"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const claimsContextKey = "auth_claims"

// Run serves the settlement API until ctx is cancelled.
func Run(ctx context.Context, cfg Config, service *settlement.Service, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sessionValidator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}

	handler := newHTTPHandler(cfg, service, logger)
	router := setupRouter(cfg, handler, sessionValidator)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("settlement api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler, sessionValidator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(sessionValidator.GinMiddleware(claimsContextKey))

	api.POST("/payments/fail", handler.handleFail)
	api.GET("/payments/:merchantRef", handler.handlePayment)
	api.POST("/payments/:reservationType/prepare", handler.handlePrepare)
	api.POST("/payments/:reservationType/verify", handler.handleVerify)
	api.POST("/payments/:reservationType/refund", handler.handleRefund)

	api.GET("/flights/:flightID/seats", handler.handleListSeats)
	admin := api.Group("", handler.requireAdmin)
	admin.POST("/flights/:flightID/seats", handler.handleInitializeSeats)
	admin.PUT("/flights/:flightID/seats/reset", handler.handleResetSeats)
	admin.DELETE("/flights/:flightID/seats", handler.handleDeleteSeats)

	api.GET("/inventory/:resourceID/:date", handler.handleInventory)

	return router
}

type httpHandler struct {
	logger   *zap.Logger
	service  *settlement.Service
	validate *validator.Validate
	cfg      Config
}

func newHTTPHandler(cfg Config, service *settlement.Service, logger *zap.Logger) *httpHandler {
	return &httpHandler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cfg:      cfg,
	}
}

func (handler *httpHandler) handlePrepare(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	reservationType, ok := handler.reservationTypeParam(ctx)
	if !ok {
		return
	}
	var request prepareRequest
	if !handler.bind(ctx, &request) {
		return
	}
	userID, err := settlement.NewUserID(claims.GetUserID())
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	intent, err := request.intent(userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	result, err := handler.service.Router().Prepare(requestCtx, reservationType, intent)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"merchant_ref":    result.MerchantRef.String(),
		"reservation_ids": reservationIDStrings(result.ReservationIDs),
		"amount":          result.Amount.Int64(),
	})
}

func (handler *httpHandler) handleVerify(ctx *gin.Context) {
	reservationType, ok := handler.reservationTypeParam(ctx)
	if !ok {
		return
	}
	var request verifyRequest
	if !handler.bind(ctx, &request) {
		return
	}
	verify, err := request.domain()
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if _, ok := handler.ownedPayment(ctx, verify.MerchantRef); !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	result, err := handler.service.Router().Verify(requestCtx, reservationType, verify)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"success":         result.Success,
		"status":          result.Status.String(),
		"merchant_ref":    result.MerchantRef.String(),
		"reservation_ids": reservationIDStrings(result.ReservationIDs),
		"reason":          result.Reason,
	})
}

func (handler *httpHandler) handleFail(ctx *gin.Context) {
	var request failRequest
	if !handler.bind(ctx, &request) {
		return
	}
	merchantRef, err := settlement.NewMerchantRef(request.MerchantRef)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if _, ok := handler.ownedPayment(ctx, merchantRef); !ok {
		return
	}
	var reservationType settlement.ReservationType
	if request.ReservationType != "" {
		reservationType, err = settlement.ParseReservationType(request.ReservationType)
		if err != nil {
			handler.respondError(ctx, err)
			return
		}
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	outcome, err := handler.service.Router().Fail(requestCtx, reservationType, merchantRef, request.Reason)
	handler.respondOutcome(ctx, outcome, err)
}

func (handler *httpHandler) handleRefund(ctx *gin.Context) {
	reservationType, ok := handler.reservationTypeParam(ctx)
	if !ok {
		return
	}
	var request refundRequest
	if !handler.bind(ctx, &request) {
		return
	}
	refund, err := request.domain()
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	if _, ok := handler.ownedPayment(ctx, refund.MerchantRef); !ok {
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()

	outcome, err := handler.service.Router().Refund(requestCtx, reservationType, refund)
	handler.respondOutcome(ctx, outcome, err)
}

func (handler *httpHandler) handlePayment(ctx *gin.Context) {
	merchantRef, err := settlement.NewMerchantRef(ctx.Param("merchantRef"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	view, ok := handler.ownedPayment(ctx, merchantRef)
	if !ok {
		return
	}
	details := make([]detailPayload, 0, len(view.Details))
	for _, detail := range view.Details {
		details = append(details, detailPayload{
			ReservationID: detail.ReservationID.String(),
			Amount:        detail.Amount.Int64(),
			Status:        string(detail.Status),
			Reason:        detail.Reason,
		})
	}
	ctx.JSON(http.StatusOK, paymentPayload{
		MerchantRef:     view.Master.MerchantRef.String(),
		ReservationType: view.Master.ReservationType.String(),
		TotalAmount:     view.Master.TotalAmount.Int64(),
		PaymentMethod:   view.Master.PaymentMethod,
		ApprovalID:      view.Master.ApprovalID,
		Status:          view.Master.Status.String(),
		Reason:          view.Master.Reason,
		Details:         details,
	})
}

func (handler *httpHandler) handleInitializeSeats(ctx *gin.Context) {
	flightID := ctx.Param("flightID")
	created, err := handler.service.Seats().Initialize(ctx.Request.Context(), flightID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	seats, err := handler.service.Seats().List(ctx.Request.Context(), flightID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"created": created, "seats": seatPayloads(seats)})
}

func (handler *httpHandler) handleListSeats(ctx *gin.Context) {
	seats, err := handler.service.Seats().List(ctx.Request.Context(), ctx.Param("flightID"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"seats": seatPayloads(seats)})
}

func (handler *httpHandler) handleResetSeats(ctx *gin.Context) {
	if err := handler.service.ResetSeats(ctx.Request.Context(), ctx.Param("flightID")); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleDeleteSeats(ctx *gin.Context) {
	if err := handler.service.Seats().DeleteAll(ctx.Request.Context(), ctx.Param("flightID")); err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleInventory(ctx *gin.Context) {
	date, err := settlement.ParseDate(ctx.Param("date"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	resourceID := ctx.Param("resourceID")
	remaining, err := handler.service.Inventory().Remaining(ctx.Request.Context(), resourceID, date)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"resource_id": resourceID,
		"date":        date.String(),
		"remaining":   remaining,
	})
}

// ownedPayment loads a payment for the session's user. Payments of other
// users are reported as unknown.
func (handler *httpHandler) ownedPayment(ctx *gin.Context, merchantRef settlement.MerchantRef) (settlement.PaymentView, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return settlement.PaymentView{}, false
	}
	view, err := handler.service.Payment(ctx.Request.Context(), merchantRef)
	if err != nil {
		handler.respondError(ctx, err)
		return settlement.PaymentView{}, false
	}
	if view.Master.UserID.String() != strings.TrimSpace(claims.GetUserID()) {
		ctx.JSON(http.StatusNotFound, errorResponse("unknown_payment", fmt.Sprintf("%s: %s", settlement.ErrUnknownPayment, merchantRef)))
		return settlement.PaymentView{}, false
	}
	return view, true
}

func (handler *httpHandler) requireAdmin(ctx *gin.Context) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	if !handler.cfg.isAdmin(claims.GetUserID()) {
		ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "seat maps are managed by operators"))
		return
	}
	ctx.Next()
}

func (handler *httpHandler) reservationTypeParam(ctx *gin.Context) (settlement.ReservationType, bool) {
	reservationType, err := settlement.ParseReservationType(ctx.Param("reservationType"))
	if err != nil {
		handler.respondError(ctx, err)
		return "", false
	}
	return reservationType, true
}

func (handler *httpHandler) bind(ctx *gin.Context, request any) bool {
	if err := ctx.ShouldBindJSON(request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return false
	}
	if err := handler.validate.Struct(request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", err.Error()))
		return false
	}
	return true
}

// respondOutcome acknowledges fail and refund calls. Repeats on a finalized
// payment are acknowledged as well.
func (handler *httpHandler) respondOutcome(ctx *gin.Context, outcome settlement.Outcome, err error) {
	if err != nil && !errors.Is(err, settlement.ErrAlreadyFinalized) {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"payment_status":  outcome.Status.String(),
		"reservation_ids": reservationIDStrings(outcome.ReservationIDs),
		"amount":          outcome.Amount.Int64(),
	})
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error("settlement request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, settlement.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, settlement.ErrAlreadyReserved):
		return http.StatusConflict, "seat_already_reserved"
	case errors.Is(err, settlement.ErrNoSeatsAvailable):
		return http.StatusConflict, "no_seats_available"
	case errors.Is(err, settlement.ErrSeatsInUse):
		return http.StatusConflict, "seats_in_use"
	case errors.Is(err, settlement.ErrSeatsExist):
		return http.StatusConflict, "seats_exist"
	case errors.Is(err, settlement.ErrInvalidPaymentStatus),
		errors.Is(err, settlement.ErrPaymentStateChanged),
		errors.Is(err, settlement.ErrReservationStateChanged),
		errors.Is(err, settlement.ErrPaymentExists):
		return http.StatusConflict, "payment_state_conflict"
	case errors.Is(err, settlement.ErrApprovalInUse):
		return http.StatusConflict, "approval_in_use"
	case errors.Is(err, settlement.ErrContention), errors.Is(err, settlement.ErrVersionConflict):
		return http.StatusServiceUnavailable, "contention"
	case errors.Is(err, settlement.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, "gateway_unavailable"
	case errors.Is(err, settlement.ErrUnknownPayment):
		return http.StatusNotFound, "unknown_payment"
	case errors.Is(err, settlement.ErrUnknownResource):
		return http.StatusNotFound, "unknown_resource"
	case errors.Is(err, settlement.ErrUnknownFlight):
		return http.StatusNotFound, "unknown_flight"
	case errors.Is(err, settlement.ErrUnknownSeat):
		return http.StatusNotFound, "unknown_seat"
	case errors.Is(err, settlement.ErrUnknownReservation):
		return http.StatusNotFound, "unknown_reservation"
	case errors.Is(err, settlement.ErrUnsupportedReservationType):
		return http.StatusBadRequest, "unsupported_reservation_type"
	case errors.Is(err, settlement.ErrReservationTypeMismatch):
		return http.StatusBadRequest, "reservation_type_mismatch"
	case errors.Is(err, settlement.ErrAmountMismatch):
		return http.StatusBadRequest, "amount_mismatch"
	case isValidationError(err):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		settlement.ErrInvalidUserID,
		settlement.ErrInvalidReservationID,
		settlement.ErrInvalidMerchantRef,
		settlement.ErrInvalidApprovalID,
		settlement.ErrInvalidAmount,
		settlement.ErrInvalidQuantity,
		settlement.ErrInvalidDate,
		settlement.ErrInvalidDateRange,
		settlement.ErrInvalidResourceKind,
		settlement.ErrInvalidIntent,
		settlement.ErrInvalidLineItems,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

func reservationIDStrings(reservationIDs []settlement.ReservationID) []string {
	values := make([]string, 0, len(reservationIDs))
	for _, reservationID := range reservationIDs {
		values = append(values, reservationID.String())
	}
	return values
}

func seatPayloads(seats []settlement.SeatUnit) []seatPayload {
	payloads := make([]seatPayload, 0, len(seats))
	for _, seat := range seats {
		payloads = append(payloads, seatPayload{
			Code:            seat.Code,
			Row:             seat.Row,
			Column:          seat.Column,
			Class:           string(seat.Class),
			Reserved:        seat.Reserved,
			PriceAdjustment: seat.PriceAdjustment.Int64(),
		})
	}
	return payloads
}

type seatPayload struct {
	Code            string `json:"code"`
	Row             int    `json:"row"`
	Column          int    `json:"column"`
	Class           string `json:"class"`
	Reserved        bool   `json:"reserved"`
	PriceAdjustment int64  `json:"price_adjustment"`
}

type detailPayload struct {
	ReservationID string `json:"reservation_id"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
}

type paymentPayload struct {
	MerchantRef     string          `json:"merchant_ref"`
	ReservationType string          `json:"reservation_type"`
	TotalAmount     int64           `json:"total_amount"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	ApprovalID      string          `json:"approval_id,omitempty"`
	Status          string          `json:"status"`
	Reason          string          `json:"reason,omitempty"`
	Details         []detailPayload `json:"details"`
}
