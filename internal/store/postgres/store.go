package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Silence-XiXi/queue-system/internal/models"
	"github.com/Silence-XiXi/queue-system/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	ticketNumberPad = 3
	allocateRetries = 3
	resetTimeKey    = "ticket_reset_time"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) AllocateTicket(ctx context.Context, input store.AllocateInput) (models.Ticket, error) {
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var lastErr error
	for attempt := 0; attempt < allocateRetries; attempt++ {
		ticket, err := s.allocateOnce(ctx, input.BusinessTypeID, createdAt)
		if err == nil {
			return ticket, nil
		}
		if !isSerializationFailure(err) {
			return models.Ticket{}, err
		}
		lastErr = err
	}
	return models.Ticket{}, fmt.Errorf("%w: %v", store.ErrAllocationConflict, lastErr)
}

func (s *Store) allocateOnce(ctx context.Context, businessTypeID int64, createdAt time.Time) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var prefix string
	row := tx.QueryRow(ctx, `
		SELECT prefix
		FROM business_types
		WHERE id = $1 AND status = 'active'
	`, businessTypeID)
	if err = row.Scan(&prefix); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrCategoryNotFound
		}
		return models.Ticket{}, err
	}

	// Atomic upsert-and-increment: the conflicting UPDATE is serialized by
	// the row lock, so concurrent allocations observe distinct values.
	var seq int
	today := createdAt.Format("2006-01-02")
	row = tx.QueryRow(ctx, `
		INSERT INTO ticket_sequences (business_type_id, date, current_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (business_type_id, date)
		DO UPDATE SET current_number = ticket_sequences.current_number + 1,
			updated_at = now()
		RETURNING current_number
	`, businessTypeID, today)
	if err = row.Scan(&seq); err != nil {
		return models.Ticket{}, err
	}

	ticketNumber := fmt.Sprintf("%s%0*d", prefix, ticketNumberPad, seq)

	var ticket models.Ticket
	row = tx.QueryRow(ctx, `
		INSERT INTO tickets (ticket_number, business_type_id, sequence_number, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, ticket_number, business_type_id, sequence_number, status, created_at
	`, ticketNumber, businessTypeID, seq, models.StatusWaiting, createdAt)
	if err = row.Scan(&ticket.ID, &ticket.TicketNumber, &ticket.BusinessTypeID, &ticket.SequenceNumber, &ticket.Status, &ticket.CreatedAt); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ListWaiting(ctx context.Context, businessTypeID int64) ([]models.Ticket, error) {
	query := `
		SELECT id, ticket_number, business_type_id, sequence_number, status, created_at, called_at, completed_at, counter_id
		FROM tickets
		WHERE status = 'waiting'
	`
	args := []interface{}{}
	if businessTypeID != 0 {
		query += " AND business_type_id = $1"
		args = append(args, businessTypeID)
	}
	query += " ORDER BY created_at ASC, sequence_number ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) CancelTicket(ctx context.Context, ticketID int64) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var ticket models.Ticket
	var calledAtNull, completedAtNull sql.NullTime
	var counterIDNull sql.NullInt64
	row := tx.QueryRow(ctx, `
		SELECT id, ticket_number, business_type_id, sequence_number, status, created_at, called_at, completed_at, counter_id
		FROM tickets
		WHERE id = $1
		FOR UPDATE
	`, ticketID)
	if err = row.Scan(&ticket.ID, &ticket.TicketNumber, &ticket.BusinessTypeID, &ticket.SequenceNumber, &ticket.Status, &ticket.CreatedAt, &calledAtNull, &completedAtNull, &counterIDNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	if !store.ValidTransition("cancel", ticket.Status) {
		err = store.ErrIllegalTransition
		return models.Ticket{}, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE tickets
		SET status = 'cancelled'
		WHERE id = $1
	`, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	ticket.Status = models.StatusCancelled
	ticket.CalledAt = nullTimePtr(calledAtNull)
	ticket.CompletedAt = nullTimePtr(completedAtNull)
	ticket.CounterID = nullInt64Ptr(counterIDNull)

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) CallNext(ctx context.Context, input store.CallNextInput) (store.DispatchResult, error) {
	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.DispatchResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	counter, err := lockCounter(ctx, tx, input.CounterID)
	if err != nil {
		return store.DispatchResult{}, classifyLockError(err)
	}

	var businessTypeName string
	row := tx.QueryRow(ctx, `
		SELECT name
		FROM business_types
		WHERE id = $1 AND status = 'active'
	`, input.BusinessTypeID)
	if err = row.Scan(&businessTypeName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.DispatchResult{}, store.ErrCategoryNotFound
		}
		return store.DispatchResult{}, err
	}

	// The claim below takes tickets from 'waiting'; keep that predicate
	// tied to the declared state machine.
	if !store.ValidTransition("call_next", models.StatusWaiting) {
		err = store.ErrIllegalTransition
		return store.DispatchResult{}, err
	}

	// Oldest waiting ticket. SKIP LOCKED keeps two concurrent calls from
	// selecting the same row: the loser sees the remaining queue, or none.
	var ticket models.Ticket
	var calledAtNull, completedAtNull sql.NullTime
	var counterIDNull sql.NullInt64
	row = tx.QueryRow(ctx, `
		WITH next_ticket AS (
			SELECT id
			FROM tickets
			WHERE business_type_id = $1 AND status = 'waiting'
			ORDER BY created_at ASC, sequence_number ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE tickets
		SET status = 'called',
			counter_id = $2,
			called_at = $3
		FROM next_ticket
		WHERE tickets.id = next_ticket.id
		RETURNING tickets.id, tickets.ticket_number, tickets.business_type_id, tickets.sequence_number, tickets.status, tickets.created_at, tickets.called_at, tickets.completed_at, tickets.counter_id
	`, input.BusinessTypeID, input.CounterID, calledAt)
	if err = row.Scan(&ticket.ID, &ticket.TicketNumber, &ticket.BusinessTypeID, &ticket.SequenceNumber, &ticket.Status, &ticket.CreatedAt, &calledAtNull, &completedAtNull, &counterIDNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_ = tx.Rollback(ctx)
			err = nil
			return store.DispatchResult{}, store.ErrNoTicket
		}
		return store.DispatchResult{}, classifyLockError(err)
	}
	ticket.CalledAt = nullTimePtr(calledAtNull)
	ticket.CompletedAt = nullTimePtr(completedAtNull)
	ticket.CounterID = nullInt64Ptr(counterIDNull)

	if err = bindCounter(ctx, tx, input.CounterID, ticket.ID, input.BusinessTypeID); err != nil {
		return store.DispatchResult{}, err
	}
	if err = insertCallLog(ctx, tx, ticket.ID, input.CounterID, input.BusinessTypeID, models.CallTypeNext); err != nil {
		return store.DispatchResult{}, err
	}
	if err = recordLastTicket(ctx, tx, input.CounterID, input.BusinessTypeID, ticket.TicketNumber); err != nil {
		return store.DispatchResult{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return store.DispatchResult{}, classifyLockError(err)
	}

	return store.DispatchResult{
		Ticket:           ticket,
		CounterID:        counter.ID,
		CounterNumber:    counter.Number,
		BusinessTypeName: businessTypeName,
		CallType:         models.CallTypeNext,
	}, nil
}

func (s *Store) CallManual(ctx context.Context, input store.CallManualInput) (store.DispatchResult, error) {
	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.DispatchResult{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	counter, err := lockCounter(ctx, tx, input.CounterID)
	if err != nil {
		return store.DispatchResult{}, classifyLockError(err)
	}

	var ticket models.Ticket
	var businessTypeName string
	var calledAtNull, completedAtNull sql.NullTime
	var counterIDNull sql.NullInt64
	row := tx.QueryRow(ctx, `
		SELECT t.id, t.ticket_number, t.business_type_id, t.sequence_number, t.status, t.created_at, t.called_at, t.completed_at, t.counter_id, b.name
		FROM tickets t
		JOIN business_types b ON b.id = t.business_type_id
		WHERE t.ticket_number = $1
		ORDER BY t.created_at DESC
		LIMIT 1
		FOR UPDATE OF t
	`, input.TicketNumber)
	if err = row.Scan(&ticket.ID, &ticket.TicketNumber, &ticket.BusinessTypeID, &ticket.SequenceNumber, &ticket.Status, &ticket.CreatedAt, &calledAtNull, &completedAtNull, &counterIDNull, &businessTypeName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.DispatchResult{}, store.ErrTicketNotFound
		}
		return store.DispatchResult{}, classifyLockError(err)
	}
	if !store.ValidTransition("call_manual", ticket.Status) {
		err = store.ErrTicketNotCallable
		return store.DispatchResult{}, err
	}

	row = tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = 'called',
			counter_id = $2,
			called_at = $3
		WHERE id = $1
		RETURNING status, called_at, counter_id
	`, ticket.ID, input.CounterID, calledAt)
	var newCalledAt sql.NullTime
	var newCounterID sql.NullInt64
	if err = row.Scan(&ticket.Status, &newCalledAt, &newCounterID); err != nil {
		return store.DispatchResult{}, err
	}
	ticket.CalledAt = nullTimePtr(newCalledAt)
	ticket.CompletedAt = nullTimePtr(completedAtNull)
	ticket.CounterID = nullInt64Ptr(newCounterID)

	if err = bindCounter(ctx, tx, input.CounterID, ticket.ID, ticket.BusinessTypeID); err != nil {
		return store.DispatchResult{}, err
	}
	if err = insertCallLog(ctx, tx, ticket.ID, input.CounterID, ticket.BusinessTypeID, models.CallTypeManual); err != nil {
		return store.DispatchResult{}, err
	}
	if err = recordLastTicket(ctx, tx, input.CounterID, ticket.BusinessTypeID, ticket.TicketNumber); err != nil {
		return store.DispatchResult{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return store.DispatchResult{}, classifyLockError(err)
	}

	return store.DispatchResult{
		Ticket:           ticket,
		CounterID:        counter.ID,
		CounterNumber:    counter.Number,
		BusinessTypeName: businessTypeName,
		CallType:         models.CallTypeManual,
	}, nil
}

func (s *Store) EndService(ctx context.Context, counterID int64, endedAt time.Time) error {
	if endedAt.IsZero() {
		endedAt = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	counter, err := lockCounter(ctx, tx, counterID)
	if err != nil {
		return classifyLockError(err)
	}

	if counter.CurrentTicketID != nil {
		var ticketStatus string
		var ticketCounter sql.NullInt64
		row := tx.QueryRow(ctx, `
			SELECT status, counter_id
			FROM tickets
			WHERE id = $1
			FOR UPDATE
		`, *counter.CurrentTicketID)
		if err = row.Scan(&ticketStatus, &ticketCounter); err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			err = nil
		} else if store.ValidTransition("complete", ticketStatus) && ticketCounter.Valid && ticketCounter.Int64 == counterID {
			// A rebound ticket carries the other counter's id and is that
			// counter's to finish.
			_, err = tx.Exec(ctx, `
				UPDATE tickets
				SET status = 'completed',
					completed_at = $2
				WHERE id = $1
			`, *counter.CurrentTicketID, endedAt)
			if err != nil {
				return err
			}
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE counters
		SET status = 'available',
			current_ticket_id = NULL,
			updated_at = now()
		WHERE id = $1
	`, counterID)
	if err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return classifyLockError(err)
	}
	return nil
}

func (s *Store) ListBusinessTypes(ctx context.Context) ([]models.BusinessType, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, COALESCE(english_name, ''), code, prefix, status
		FROM business_types
		WHERE status = 'active'
		ORDER BY code ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []models.BusinessType
	for rows.Next() {
		var bt models.BusinessType
		if err := rows.Scan(&bt.ID, &bt.Name, &bt.EnglishName, &bt.Code, &bt.Prefix, &bt.Status); err != nil {
			return nil, err
		}
		types = append(types, bt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return types, nil
}

func (s *Store) ListCounters(ctx context.Context) ([]models.Counter, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.counter_number, COALESCE(c.name, ''), c.status, c.current_ticket_id, c.current_business_type_id, t.ticket_number
		FROM counters c
		LEFT JOIN tickets t ON t.id = c.current_ticket_id
		ORDER BY c.counter_number ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []models.Counter
	for rows.Next() {
		var counter models.Counter
		var ticketIDNull, businessTypeIDNull sql.NullInt64
		var ticketNumberNull sql.NullString
		if err := rows.Scan(&counter.ID, &counter.Number, &counter.Name, &counter.Status, &ticketIDNull, &businessTypeIDNull, &ticketNumberNull); err != nil {
			return nil, err
		}
		counter.CurrentTicketID = nullInt64Ptr(ticketIDNull)
		counter.CurrentBusinessTypeID = nullInt64Ptr(businessTypeIDNull)
		counter.CurrentTicketNumber = nullStringPtr(ticketNumberNull)
		counters = append(counters, counter)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counters, nil
}

func (s *Store) UpdateCounter(ctx context.Context, input store.UpdateCounterInput) (models.Counter, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Counter{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	counter, err := lockCounter(ctx, tx, input.CounterID)
	if err != nil {
		return models.Counter{}, classifyLockError(err)
	}

	if input.Status != "" {
		if counter.CurrentTicketID != nil && input.Status != models.CounterBusy {
			err = store.ErrCounterBusy
			return models.Counter{}, err
		}
		counter.Status = input.Status
	}
	if input.BusinessTypeID != nil {
		counter.CurrentBusinessTypeID = input.BusinessTypeID
	}

	_, err = tx.Exec(ctx, `
		UPDATE counters
		SET status = $2,
			current_business_type_id = $3,
			updated_at = now()
		WHERE id = $1
	`, input.CounterID, counter.Status, counter.CurrentBusinessTypeID)
	if err != nil {
		return models.Counter{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Counter{}, err
	}
	return counter, nil
}

func (s *Store) ListCallLogs(ctx context.Context, limit int) ([]models.CallLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT l.id, l.ticket_id, t.ticket_number, l.counter_id, l.business_type_id, l.call_type, l.created_at
		FROM call_logs l
		JOIN tickets t ON t.id = l.ticket_id
		ORDER BY l.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.CallLog
	for rows.Next() {
		var entry models.CallLog
		if err := rows.Scan(&entry.ID, &entry.TicketID, &entry.TicketNumber, &entry.CounterID, &entry.BusinessTypeID, &entry.CallType, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) GetResetTime(ctx context.Context) (string, error) {
	var value string
	row := s.pool.QueryRow(ctx, `
		SELECT value
		FROM settings
		WHERE key = $1
	`, resetTimeKey)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

func (s *Store) UpdateResetTime(ctx context.Context, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settings (key, value, description)
		VALUES ($1, $2, 'daily ticket reset time (HH:MM)')
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, resetTimeKey, value)
	return err
}

// PerformDailyReset zeroes every per-day sequence row and drops the serving
// linkage on every counter, in one transaction. For a category with no row
// dated today, its most recent past row is rewritten to today instead of
// inserting a new one, so the (business_type_id, date) uniqueness holds while
// each category keeps exactly one row. Counter status is left alone.
func (s *Store) PerformDailyReset(ctx context.Context, today string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		UPDATE ticket_sequences
		SET current_number = 0,
			updated_at = now()
		WHERE date = $1
	`, today)
	if err != nil {
		return err
	}

	rows, err := tx.Query(ctx, `SELECT DISTINCT business_type_id FROM ticket_sequences`)
	if err != nil {
		return err
	}
	var businessTypeIDs []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		businessTypeIDs = append(businessTypeIDs, id)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return err
	}

	for _, businessTypeID := range businessTypeIDs {
		var exists bool
		row := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM ticket_sequences
				WHERE business_type_id = $1 AND date = $2
			)
		`, businessTypeID, today)
		if err = row.Scan(&exists); err != nil {
			return err
		}

		if !exists {
			var oldID int64
			row = tx.QueryRow(ctx, `
				SELECT id
				FROM ticket_sequences
				WHERE business_type_id = $1 AND date <> $2
				ORDER BY date DESC
				LIMIT 1
				FOR UPDATE
			`, businessTypeID, today)
			if err = row.Scan(&oldID); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					err = nil
					continue
				}
				return err
			}
			_, err = tx.Exec(ctx, `
				UPDATE ticket_sequences
				SET date = $2,
					current_number = 0,
					updated_at = now()
				WHERE id = $1
			`, oldID, today)
			if err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `
			DELETE FROM ticket_sequences
			WHERE business_type_id = $1 AND date <> $2
		`, businessTypeID, today)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE counters
		SET current_ticket_id = NULL,
			updated_at = now()
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE counter_business_last_ticket
		SET last_ticket_no = NULL,
			updated_at = now()
	`)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func lockCounter(ctx context.Context, tx pgx.Tx, counterID int64) (models.Counter, error) {
	var counter models.Counter
	var ticketIDNull, businessTypeIDNull sql.NullInt64
	row := tx.QueryRow(ctx, `
		SELECT id, counter_number, COALESCE(name, ''), status, current_ticket_id, current_business_type_id
		FROM counters
		WHERE id = $1
		FOR UPDATE
	`, counterID)
	if err := row.Scan(&counter.ID, &counter.Number, &counter.Name, &counter.Status, &ticketIDNull, &businessTypeIDNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Counter{}, store.ErrCounterNotFound
		}
		return models.Counter{}, err
	}
	counter.CurrentTicketID = nullInt64Ptr(ticketIDNull)
	counter.CurrentBusinessTypeID = nullInt64Ptr(businessTypeIDNull)
	return counter, nil
}

func bindCounter(ctx context.Context, tx pgx.Tx, counterID, ticketID, businessTypeID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE counters
		SET status = 'busy',
			current_ticket_id = $2,
			current_business_type_id = $3,
			updated_at = now()
		WHERE id = $1
	`, counterID, ticketID, businessTypeID)
	return err
}

func insertCallLog(ctx context.Context, tx pgx.Tx, ticketID, counterID, businessTypeID int64, callType string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO call_logs (ticket_id, counter_id, business_type_id, call_type)
		VALUES ($1, $2, $3, $4)
	`, ticketID, counterID, businessTypeID, callType)
	return err
}

func recordLastTicket(ctx context.Context, tx pgx.Tx, counterID, businessTypeID int64, ticketNumber string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO counter_business_last_ticket (counter_id, business_type_id, last_ticket_no)
		VALUES ($1, $2, $3)
		ON CONFLICT (counter_id, business_type_id)
		DO UPDATE SET last_ticket_no = EXCLUDED.last_ticket_no, updated_at = now()
	`, counterID, businessTypeID, ticketNumber)
	return err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func classifyLockError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// lock_not_available, serialization_failure, deadlock_detected
		switch pgErr.Code {
		case "55P03", "40001", "40P01":
			return fmt.Errorf("%w: %v", store.ErrDispatchConflict, err)
		}
	}
	return err
}

func scanTicket(rows pgx.Rows) (models.Ticket, error) {
	var ticket models.Ticket
	var calledAtNull, completedAtNull sql.NullTime
	var counterIDNull sql.NullInt64
	if err := rows.Scan(&ticket.ID, &ticket.TicketNumber, &ticket.BusinessTypeID, &ticket.SequenceNumber, &ticket.Status, &ticket.CreatedAt, &calledAtNull, &completedAtNull, &counterIDNull); err != nil {
		return models.Ticket{}, err
	}
	ticket.CalledAt = nullTimePtr(calledAtNull)
	ticket.CompletedAt = nullTimePtr(completedAtNull)
	ticket.CounterID = nullInt64Ptr(counterIDNull)
	return ticket, nil
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

func nullInt64Ptr(value sql.NullInt64) *int64 {
	if !value.Valid {
		return nil
	}
	return &value.Int64
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}
