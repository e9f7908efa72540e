package payments

import (
	"context"
	"database/sql"
	"time"

	commonerrors "github.com/ClipFinance/settlement-lib/common/errors"
	"github.com/ClipFinance/settlement-lib/common/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// ErrDatabaseConnect is returned when the database cannot be reached.
var ErrDatabaseConnect = errors.New("failed to connect to database")

const uniqueViolation = "23505"

const schema = `
	CREATE TABLE IF NOT EXISTS payment (
		id             TEXT PRIMARY KEY,
		merchant_id    TEXT NOT NULL,
		from_wallet    TEXT NOT NULL,
		amount         NUMERIC NOT NULL,
		token          TEXT NOT NULL,
		status         TEXT NOT NULL,
		signature      TEXT,
		failure_reason TEXT,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`

// PostgresStore keeps payments in the payment table of a Postgres database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a Postgres store for the provided connection string.
//
// Parameters:
// - dsn: the database connection string.
//
// Returns:
// - *PostgresStore: the new store.
// - error: an error if the connection string is rejected by the driver.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, commonerrors.Validationf("database dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(ErrDatabaseConnect, err.Error())
	}
	return &PostgresStore{db: db}, nil
}

// EnsureSchema creates the payment table if it does not exist.
func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to create payment table")
	}
	return nil
}

// Close releases the database handle.
func (r *PostgresStore) Close() error {
	return r.db.Close()
}

// CreatePayment inserts a new payment.
//
// Parameters:
// - ctx: the context for managing the request.
// - payment: the payment to insert.
//
// Returns:
// - error: ErrPaymentExists if the id is taken, or the database error.
func (r *PostgresStore) CreatePayment(ctx context.Context, payment *types.Payment) error {
	if payment == nil || payment.ID == "" {
		return commonerrors.Validationf("payment id is required")
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment (
			id,
			merchant_id,
			from_wallet,
			amount,
			token,
			status,
			signature,
			failure_reason,
			created_at,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		payment.ID,
		payment.MerchantID,
		payment.FromWallet,
		payment.Amount.String(),
		payment.Token,
		payment.Status.String(),
		nullString(payment.Signature),
		nullString(payment.FailureReason),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return errors.Wrapf(commonerrors.ErrPaymentExists, "payment %s", payment.ID)
		}
		return errors.Wrap(err, "failed to insert payment")
	}
	return nil
}

// UpdatePaymentStatus moves a PENDING payment to a terminal status. The
// status guard runs inside the UPDATE so concurrent settlements cannot both win.
//
// Parameters:
// - ctx: the context for managing the request.
// - update: the status change.
//
// Returns:
// - error: ErrPaymentNotFound, ErrInvalidTransition, or the database error.
func (r *PostgresStore) UpdatePaymentStatus(ctx context.Context, update StatusUpdate) error {
	if !types.StatusPending.CanTransitionTo(update.Status) {
		return errors.Wrapf(commonerrors.ErrInvalidTransition, "payment %s: -> %s", update.ID, update.Status)
	}

	query := `
		UPDATE payment
			SET status = $1,
			    signature = COALESCE($2, signature),
			    failure_reason = $3,
			    updated_at = $4
		WHERE id = $5 AND status = $6
	`

	result, err := r.db.ExecContext(ctx, query,
		update.Status.String(),
		nullString(update.Signature),
		nullString(update.Reason),
		update.At,
		update.ID,
		types.StatusPending.String(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to update payment status")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rowsAffected > 0 {
		return nil
	}

	current, err := r.GetPayment(ctx, update.ID)
	if err != nil {
		return err
	}
	return errors.Wrapf(commonerrors.ErrInvalidTransition, "payment %s: %s -> %s", update.ID, current.Status, update.Status)
}

// GetPayment returns the payment with the given id.
//
// Parameters:
// - ctx: the context for managing the request.
// - id: the payment identifier.
//
// Returns:
// - *types.Payment: the stored payment.
// - error: ErrPaymentNotFound if no row matches, or the database error.
func (r *PostgresStore) GetPayment(ctx context.Context, id string) (*types.Payment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT
			id,
			merchant_id,
			from_wallet,
			amount,
			token,
			status,
			signature,
			failure_reason,
			created_at,
			updated_at
		FROM payment
		WHERE id = $1`, id)

	var (
		payment   types.Payment
		status    string
		signature sql.NullString
		reason    sql.NullString
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(
		&payment.ID,
		&payment.MerchantID,
		&payment.FromWallet,
		&payment.Amount,
		&payment.Token,
		&status,
		&signature,
		&reason,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(commonerrors.ErrPaymentNotFound, "payment %s", id)
		}
		return nil, errors.Wrap(err, "failed to get payment")
	}

	payment.Status = types.PaymentStatus(status)
	payment.Signature = signature.String
	payment.FailureReason = reason.String
	payment.CreatedAt = createdAt
	payment.UpdatedAt = updatedAt
	return &payment, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
