package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderflow/orderflow/internal/order/domain"
	"github.com/orderflow/orderflow/pkg/outbox"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Save(ctx context.Context, o domain.Order) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := saveOrderTx(ctx, tx, o); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) SaveWithOutbox(ctx context.Context, o domain.Order, eventID, eventType string, payload []byte, traceparent string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := saveOrderTx(ctx, tx, o); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `INSERT INTO outbox
		(event_id, aggregate_type, aggregate_id, type, payload, correlation_id, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending')`,
		eventID, "order", o.ID, eventType, payload, o.CorrelationID, traceparent)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func saveOrderTx(ctx context.Context, tx pgx.Tx, o domain.Order) error {
	_, err := tx.Exec(ctx, `INSERT INTO orders
		(id, customer_id, status, total_cents, correlation_id, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET status=$3, total_cents=$4, updated_at=$8`,
		o.ID, o.CustomerID, string(o.Status), o.TotalCents, o.CorrelationID, o.CreatedBy, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, item := range o.Items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price_cents)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (order_id, product_id) DO UPDATE SET product_name=$3, quantity=$4, unit_price_cents=$5`,
			o.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPriceCents)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, bool, error) {
	var o domain.Order
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, customer_id, status, total_cents, correlation_id, created_by, created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.CustomerID, &status, &o.TotalCents, &o.CorrelationID, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, err
	}
	o.Status = domain.OrderStatus(status)

	rows, err := r.pool.Query(ctx, `SELECT product_id, product_name, quantity, unit_price_cents
		FROM order_items WHERE order_id=$1 ORDER BY product_id`, id)
	if err != nil {
		return domain.Order{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPriceCents); err != nil {
			return domain.Order{}, false, err
		}
		o.Items = append(o.Items, item)
	}
	return o, true, rows.Err()
}

// OutboxStore is the order service's durable event queue, polled by the relay.
type OutboxStore struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewOutboxStore(log *slog.Logger, pool *pgxpool.Pool) *OutboxStore {
	return &OutboxStore{log: log, pool: pool}
}

func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, type, payload, correlation_id, traceparent, created_at
		FROM outbox
		WHERE status='pending' OR (status='in_progress' AND lease_until < now())
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1`, batchSize)
	if err != nil {
		return nil, err
	}

	var events []outbox.Event
	for rows.Next() {
		var ev outbox.Event
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.AggregateType, &ev.AggregateID, &ev.Type,
			&ev.Payload, &ev.CorrelationID, &ev.Traceparent, &ev.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		events = append(events, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	_, err = tx.Exec(ctx, `UPDATE outbox SET status='in_progress', relay_id=$1, lease_until=now() + $2::interval
		WHERE id = ANY($3)`, relayID, lease.String(), ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status='sent' WHERE id = ANY($1)`, ids)
	return err
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	// Rejected rows go back to pending for the next tick; after ten
	// attempts they park in 'failed' as the dead-letter state operators
	// watch.
	_, err := s.pool.Exec(ctx, `UPDATE outbox
		SET status = CASE WHEN retry_count + 1 >= 10 THEN 'failed' ELSE 'pending' END,
		    last_error=$2, retry_count=retry_count+1
		WHERE id=$1`, id, errMsg)
	return err
}
