package httpapi

import "github.com/MarkoPoloResearchLab/settlement/pkg/settlement"

type lodgingPayload struct {
	ResourceID string `json:"resource_id" validate:"required"`
	CheckIn    string `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut   string `json:"check_out" validate:"required,datetime=2006-01-02"`
	Quantity   int    `json:"quantity" validate:"gt=0"`
}

type flightLegPayload struct {
	FlightID   string   `json:"flight_id" validate:"required"`
	Passengers int      `json:"passengers" validate:"gt=0"`
	SeatCodes  []string `json:"seat_codes" validate:"omitempty,dive,required"`
}

type flightPayload struct {
	TripType string             `json:"trip_type" validate:"omitempty,oneof=ONE_WAY ROUND_TRIP"`
	Legs     []flightLegPayload `json:"legs" validate:"min=1,max=2,dive"`
}

type deliveryPayload struct {
	ResourceID  string `json:"resource_id" validate:"required"`
	PickupDate  string `json:"pickup_date" validate:"required,datetime=2006-01-02"`
	Sender      string `json:"sender" validate:"required"`
	Recipient   string `json:"recipient" validate:"required"`
	Address     string `json:"address" validate:"required"`
	WeightGrams int    `json:"weight_grams" validate:"gte=0"`
	TotalPrice  int64  `json:"total_price" validate:"gt=0"`
}

type prepareRequest struct {
	Lodging  *lodgingPayload  `json:"lodging" validate:"omitempty"`
	Flight   *flightPayload   `json:"flight" validate:"omitempty"`
	Delivery *deliveryPayload `json:"delivery" validate:"omitempty"`
}

type lineItemPayload struct {
	ReservationID string `json:"reservation_id" validate:"required"`
	Amount        int64  `json:"amount" validate:"gt=0"`
}

type verifyRequest struct {
	MerchantRef string            `json:"merchant_ref" validate:"required"`
	ApprovalID  string            `json:"approval_id" validate:"required"`
	Amount      int64             `json:"amount" validate:"gt=0"`
	LineItems   []lineItemPayload `json:"line_items" validate:"omitempty,dive"`
}

type failRequest struct {
	MerchantRef     string `json:"merchant_ref" validate:"required"`
	ReservationType string `json:"reservation_type"`
	Reason          string `json:"reason"`
}

type refundRequest struct {
	MerchantRef string `json:"merchant_ref" validate:"required"`
	Reason      string `json:"reason"`
	LineItemID  string `json:"line_item_id"`
}

func (request prepareRequest) intent(userID settlement.UserID) (settlement.Intent, error) {
	intent := settlement.Intent{UserID: userID}
	if request.Lodging != nil {
		checkIn, err := settlement.ParseDate(request.Lodging.CheckIn)
		if err != nil {
			return settlement.Intent{}, err
		}
		checkOut, err := settlement.ParseDate(request.Lodging.CheckOut)
		if err != nil {
			return settlement.Intent{}, err
		}
		intent.Lodging = &settlement.LodgingIntent{
			ResourceID: request.Lodging.ResourceID,
			CheckIn:    checkIn,
			CheckOut:   checkOut,
			Quantity:   request.Lodging.Quantity,
		}
	}
	if request.Flight != nil {
		legs := make([]settlement.FlightLegIntent, 0, len(request.Flight.Legs))
		for _, leg := range request.Flight.Legs {
			legs = append(legs, settlement.FlightLegIntent{
				FlightID:   leg.FlightID,
				Passengers: leg.Passengers,
				SeatCodes:  leg.SeatCodes,
			})
		}
		intent.Flight = &settlement.FlightIntent{
			TripType: settlement.TripType(request.Flight.TripType),
			Legs:     legs,
		}
	}
	if request.Delivery != nil {
		pickupDate, err := settlement.ParseDate(request.Delivery.PickupDate)
		if err != nil {
			return settlement.Intent{}, err
		}
		intent.Delivery = &settlement.DeliveryIntent{
			ResourceID:  request.Delivery.ResourceID,
			PickupDate:  pickupDate,
			Sender:      request.Delivery.Sender,
			Recipient:   request.Delivery.Recipient,
			Address:     request.Delivery.Address,
			WeightGrams: request.Delivery.WeightGrams,
			TotalPrice:  settlement.Amount(request.Delivery.TotalPrice),
		}
	}
	return intent, nil
}

func (request verifyRequest) domain() (settlement.VerifyRequest, error) {
	merchantRef, err := settlement.NewMerchantRef(request.MerchantRef)
	if err != nil {
		return settlement.VerifyRequest{}, err
	}
	claims := make([]settlement.LineItemClaim, 0, len(request.LineItems))
	for _, item := range request.LineItems {
		reservationID, err := settlement.NewReservationID(item.ReservationID)
		if err != nil {
			return settlement.VerifyRequest{}, err
		}
		amount, err := settlement.NewAmount(item.Amount)
		if err != nil {
			return settlement.VerifyRequest{}, err
		}
		claims = append(claims, settlement.LineItemClaim{ReservationID: reservationID, Amount: amount})
	}
	amount, err := settlement.NewAmount(request.Amount)
	if err != nil {
		return settlement.VerifyRequest{}, err
	}
	return settlement.VerifyRequest{
		MerchantRef:   merchantRef,
		ApprovalID:    request.ApprovalID,
		ClaimedAmount: amount,
		LineItems:     claims,
	}, nil
}

func (request refundRequest) domain() (settlement.RefundRequest, error) {
	merchantRef, err := settlement.NewMerchantRef(request.MerchantRef)
	if err != nil {
		return settlement.RefundRequest{}, err
	}
	refund := settlement.RefundRequest{MerchantRef: merchantRef, Reason: request.Reason}
	if request.LineItemID != "" {
		lineItemID, err := settlement.NewReservationID(request.LineItemID)
		if err != nil {
			return settlement.RefundRequest{}, err
		}
		refund.LineItemID = lineItemID
	}
	return refund, nil
}
