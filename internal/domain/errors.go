package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrStoreTransient   = errors.New("analytics store transient failure")
	ErrQueryPermanent   = errors.New("analytics query permanent failure")
	ErrGatewayTransient = errors.New("gateway transient failure")
	ErrGatewayRejected  = errors.New("gateway rejected order")
	ErrQueueFull        = errors.New("signal queue full")
	ErrUnknownFund      = errors.New("unknown fund")
)
