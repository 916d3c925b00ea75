package handlers

import (
	"github.com/keybase-market/pimarket/internal/app/service/donation"
	"github.com/keybase-market/pimarket/internal/app/service/identity"
	"github.com/keybase-market/pimarket/internal/app/service/statistics"
	"github.com/keybase-market/pimarket/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespVerifyIdentity wraps VerifyIdentityResponse in the standard envelope.
type RespVerifyIdentity struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    VerifyIdentityResponse   `json:"data"`
}

// RespCreatePayment wraps CreatePaymentResponse in the standard envelope.
type RespCreatePayment struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    CreatePaymentResponse    `json:"data"`
}

// RespPaymentError wraps PaymentErrorResponse in the standard envelope.
type RespPaymentError struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    PaymentErrorResponse     `json:"data"`
}

// RespListDonations wraps ScanDonationsResponse in the standard envelope.
type RespListDonations struct {
	Code    response.APIResponseCode       `json:"code"`
	Message string                         `json:"message"`
	Data    donation.ScanDonationsResponse `json:"data"`
}

// RespDonationStatistic wraps DonationStatisticResponse in the standard envelope.
type RespDonationStatistic struct {
	Code    response.APIResponseCode             `json:"code"`
	Message string                               `json:"message"`
	Data    statistics.DonationStatisticResponse `json:"data"`
}

// RespListUsers wraps ScanUsersResponse in the standard envelope.
type RespListUsers struct {
	Code    response.APIResponseCode   `json:"code"`
	Message string                     `json:"message"`
	Data    identity.ScanUsersResponse `json:"data"`
}
