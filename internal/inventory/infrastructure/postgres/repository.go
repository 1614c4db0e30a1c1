package postgres

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderflow/orderflow/internal/inventory/domain"
)

// Repository is the pgx-backed ReservationStore. Admission control relies on
// row locks: product rows are locked FOR UPDATE in sorted product order, so
// two batches touching the same products serialize instead of deadlocking.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) ReserveBatch(ctx context.Context, reservations []domain.StockReservation) ([]domain.ItemOutcome, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	orderID := reservations[0].OrderID

	// Any prior batch for the order conflicts, whatever its status; a row is
	// never recreated once it reached a terminal state.
	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM stock_reservations WHERE order_id=$1)`,
		orderID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrReservationConflict
	}

	sorted := make([]domain.StockReservation, len(reservations))
	copy(sorted, reservations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	admitted := true
	names := make(map[string]string, len(sorted))
	outcomeByProduct := make(map[string]domain.ItemOutcome, len(sorted))
	for _, res := range sorted {
		outcome := domain.ItemOutcome{ProductID: res.ProductID, Requested: res.Quantity, ReservationID: res.ID}

		var name string
		var stock int
		err = tx.QueryRow(ctx, `SELECT name, stock FROM products WHERE id=$1 FOR UPDATE`, res.ProductID).
			Scan(&name, &stock)
		if errors.Is(err, pgx.ErrNoRows) {
			outcome.Reason = domain.ErrProductNotFound
			admitted = false
			outcomeByProduct[res.ProductID] = outcome
			continue
		}
		if err != nil {
			return nil, err
		}
		names[res.ProductID] = name

		var reservedSum int
		err = tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(quantity),0) FROM stock_reservations WHERE product_id=$1 AND status='reserved'`,
			res.ProductID).Scan(&reservedSum)
		if err != nil {
			return nil, err
		}

		outcome.AvailableStock = stock - reservedSum
		if res.Quantity > outcome.AvailableStock {
			outcome.Reason = domain.ErrInsufficientStock
			admitted = false
		} else {
			outcome.OK = true
			outcome.AvailableStock -= res.Quantity
		}
		outcomeByProduct[res.ProductID] = outcome
	}

	if admitted {
		for _, res := range sorted {
			_, err = tx.Exec(ctx, `INSERT INTO stock_reservations
				(id, order_id, product_id, product_name, quantity, status, reserved_at, correlation_id)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				res.ID, res.OrderID, res.ProductID, names[res.ProductID], res.Quantity,
				string(domain.StatusReserved), res.ReservedAt, res.CorrelationID)
			if err != nil {
				// The UNIQUE (order_id, product_id) constraint backstops
				// the existence check against a racing duplicate batch.
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "23505" {
					return nil, domain.ErrReservationConflict
				}
				return nil, err
			}
		}
		if err = tx.Commit(ctx); err != nil {
			return nil, err
		}
	}
	// On rejection the deferred rollback discards the locks and nothing
	// else; no row was written.

	outcomes := make([]domain.ItemOutcome, 0, len(reservations))
	for _, res := range reservations {
		o := outcomeByProduct[res.ProductID]
		if !admitted {
			// Zero rows persisted: items that individually passed still
			// carry no reservation id.
			o.OK = false
			o.ReservationID = ""
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

func (r *Repository) GetByOrder(ctx context.Context, orderID string) ([]domain.StockReservation, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, product_id, product_name, quantity, status,
		reserved_at, processed_at, correlation_id
		FROM stock_reservations WHERE order_id=$1 ORDER BY product_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.StockReservation, bool, error) {
	var res domain.StockReservation
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, order_id, product_id, product_name, quantity, status,
		reserved_at, processed_at, correlation_id
		FROM stock_reservations WHERE id=$1`, id).
		Scan(&res.ID, &res.OrderID, &res.ProductID, &res.ProductName, &res.Quantity, &status,
			&res.ReservedAt, &res.ProcessedAt, &res.CorrelationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StockReservation{}, false, nil
	}
	if err != nil {
		return domain.StockReservation{}, false, err
	}
	res.Status = domain.ReservationStatus(status)
	return res, true, nil
}

func (r *Repository) MarkDebited(ctx context.Context, orderID string, now time.Time) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `SELECT id, product_id, quantity FROM stock_reservations
		WHERE order_id=$1 AND status='reserved' ORDER BY product_id FOR UPDATE`, orderID)
	if err != nil {
		return 0, err
	}
	type held struct {
		id        string
		productID string
		quantity  int
	}
	var holds []held
	for rows.Next() {
		var h held
		if err := rows.Scan(&h.id, &h.productID, &h.quantity); err != nil {
			rows.Close()
			return 0, err
		}
		holds = append(holds, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(holds) == 0 {
		return 0, tx.Commit(ctx)
	}

	for _, h := range holds {
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $1 WHERE id=$2`, h.quantity, h.productID); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE stock_reservations SET status='debited', processed_at=$1 WHERE id=$2`, now, h.id); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(holds), nil
}

func (r *Repository) MarkReleased(ctx context.Context, orderID string, now time.Time) (int, error) {
	// A release only flips status; nominal stock was never decremented for
	// a hold, so removing it from the Reserved sum is the whole effect.
	ct, err := r.pool.Exec(ctx,
		`UPDATE stock_reservations SET status='released', processed_at=$1 WHERE order_id=$2 AND status='reserved'`,
		now, orderID)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (domain.Product, bool, error) {
	var p domain.Product
	err := r.pool.QueryRow(ctx, `SELECT id, name, unit_price_cents, stock FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.UnitPriceCents, &p.Stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, false, nil
	}
	if err != nil {
		return domain.Product{}, false, err
	}
	return p, true, nil
}

func scanReservations(rows pgx.Rows) ([]domain.StockReservation, error) {
	var out []domain.StockReservation
	for rows.Next() {
		var res domain.StockReservation
		var status string
		if err := rows.Scan(&res.ID, &res.OrderID, &res.ProductID, &res.ProductName, &res.Quantity,
			&status, &res.ReservedAt, &res.ProcessedAt, &res.CorrelationID); err != nil {
			return nil, err
		}
		res.Status = domain.ReservationStatus(status)
		out = append(out, res)
	}
	return out, rows.Err()
}
