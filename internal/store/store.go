package store

import (
	"context"
	"time"

	"github.com/Silence-XiXi/queue-system/internal/models"
)

type AllocateInput struct {
	BusinessTypeID int64
	CreatedAt      time.Time
}

type CallNextInput struct {
	CounterID      int64
	BusinessTypeID int64
	CalledAt       time.Time
}

type CallManualInput struct {
	CounterID    int64
	TicketNumber string
	CalledAt     time.Time
}

type UpdateCounterInput struct {
	CounterID      int64
	Status         string
	BusinessTypeID *int64
}

// DispatchResult is the denormalized view handed to the broadcast channel
// after a successful call.
type DispatchResult struct {
	Ticket           models.Ticket `json:"ticket"`
	CounterID        int64         `json:"counter_id"`
	CounterNumber    int           `json:"counter_number"`
	BusinessTypeName string        `json:"business_type_name"`
	CallType         string        `json:"call_type"`
}

type TicketStore interface {
	AllocateTicket(ctx context.Context, input AllocateInput) (models.Ticket, error)
	ListWaiting(ctx context.Context, businessTypeID int64) ([]models.Ticket, error)
	CancelTicket(ctx context.Context, ticketID int64) (models.Ticket, error)

	CallNext(ctx context.Context, input CallNextInput) (DispatchResult, error)
	CallManual(ctx context.Context, input CallManualInput) (DispatchResult, error)
	EndService(ctx context.Context, counterID int64, endedAt time.Time) error

	ListBusinessTypes(ctx context.Context) ([]models.BusinessType, error)
	ListCounters(ctx context.Context) ([]models.Counter, error)
	UpdateCounter(ctx context.Context, input UpdateCounterInput) (models.Counter, error)
	ListCallLogs(ctx context.Context, limit int) ([]models.CallLog, error)

	GetResetTime(ctx context.Context) (string, error)
	UpdateResetTime(ctx context.Context, value string) error
	PerformDailyReset(ctx context.Context, today string) error
}
