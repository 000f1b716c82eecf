package service

import "errors"

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrGatewayUnsupported   = errors.New("gateway is not supported")
	ErrGatewayInitiation    = errors.New("gateway rejected the payment request")
	ErrCallbackRejected     = errors.New("callback rejected")
)
