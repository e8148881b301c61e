package models

import "time"

type BusinessType struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	EnglishName string `json:"english_name,omitempty"`
	Code        string `json:"code"`
	Prefix      string `json:"prefix"`
	Status      string `json:"status"`
}

const (
	BusinessTypeActive   = "active"
	BusinessTypeInactive = "inactive"
)

type Ticket struct {
	ID             int64      `json:"id"`
	TicketNumber   string     `json:"ticket_number"`
	BusinessTypeID int64      `json:"business_type_id"`
	SequenceNumber int        `json:"sequence_number"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	CalledAt       *time.Time `json:"called_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CounterID      *int64     `json:"counter_id,omitempty"`
}

const (
	StatusWaiting   = "waiting"
	StatusCalled    = "called"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

type Counter struct {
	ID                    int64   `json:"id"`
	Number                int     `json:"counter_number"`
	Name                  string  `json:"name,omitempty"`
	Status                string  `json:"status"`
	CurrentTicketID       *int64  `json:"current_ticket_id,omitempty"`
	CurrentTicketNumber   *string `json:"current_ticket_number,omitempty"`
	CurrentBusinessTypeID *int64  `json:"current_business_type_id,omitempty"`
}

const (
	CounterClosed    = "closed"
	CounterAvailable = "available"
	CounterBusy      = "busy"
)

type CallLog struct {
	ID             int64     `json:"id"`
	TicketID       int64     `json:"ticket_id"`
	TicketNumber   string    `json:"ticket_number"`
	CounterID      int64     `json:"counter_id"`
	BusinessTypeID int64     `json:"business_type_id"`
	CallType       string    `json:"call_type"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	CallTypeNext   = "next"
	CallTypeManual = "manual"
)
