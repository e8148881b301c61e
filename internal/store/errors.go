package store

import "errors"

var (
	ErrCategoryNotFound   = errors.New("business type not found")
	ErrCounterNotFound    = errors.New("counter not found")
	ErrCounterBusy        = errors.New("counter is serving a ticket")
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrTicketNotCallable  = errors.New("ticket can no longer be called")
	ErrNoTicket           = errors.New("no waiting ticket")
	ErrIllegalTransition  = errors.New("illegal ticket state transition")
	ErrAllocationConflict = errors.New("ticket number allocation conflict")
	ErrDispatchConflict   = errors.New("dispatch lock conflict")
)
