package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrCapacityExceeded    = errors.New("exposure capacity exceeded")
	ErrTradingHalted       = errors.New("trading halted")
	ErrConnectivity        = errors.New("broker connectivity error")
	ErrOrderRejected       = errors.New("order rejected by broker")
	ErrUnknownPosition     = errors.New("settlement for unknown position")
	ErrDuplicateSettlement = errors.New("duplicate settlement")
	ErrInvalidTransition   = errors.New("invalid position status transition")
	ErrUnknownReservation  = errors.New("unknown reservation token")
	ErrStakeBelowMinimum   = errors.New("stake below broker minimum")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrWSDisconnect        = errors.New("websocket disconnected")
	ErrLockHeld            = errors.New("lock already held")
)
