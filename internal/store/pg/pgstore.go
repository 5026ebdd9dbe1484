// Package pg persists the claim, account, ledger and policy domains in
// PostgreSQL. Engine batches commit inside a single database transaction so
// the all-or-nothing contract holds at the storage layer.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"polisure.org/internal/account"
	"polisure.org/internal/auth"
	"polisure.org/internal/claims"
	"polisure.org/internal/ids"
	"polisure.org/internal/ledger"
	"polisure.org/internal/policy"
)

const uniqueViolation = "23505"

// referenceAttempts bounds retries on a reference-code collision.
const referenceAttempts = 5

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Claims returns the claim persistence view.
func (s *Store) Claims() claims.Store { return claimStore{s.db} }

// Accounts returns the account persistence view.
func (s *Store) Accounts() account.Store { return accountStore{s.db} }

// Ledger returns the transaction view.
func (s *Store) Ledger() ledger.Service { return ledgerService{s.db} }

// Policies returns the policy catalog view.
func (s *Store) Policies() policy.Catalog { return catalog{s.db} }

// --- policy.Catalog ---

type catalog struct{ db *sql.DB }

var _ policy.Catalog = catalog{}

const policyColumns = `tier, limit_medication, limit_hospital_treatment, limit_surgery, limit_dental_service, price, created_at`

func (v catalog) ByTier(ctx context.Context, tier policy.Tier) (policy.Policy, error) {
	row := v.db.QueryRowContext(ctx, `select `+policyColumns+` from policies where tier=$1`, tier)
	return scanPolicy(row)
}

func (v catalog) List(ctx context.Context) ([]policy.Policy, error) {
	rows, err := v.db.QueryContext(ctx, `select `+policyColumns+` from policies order by price asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (policy.Policy, error) {
	var p policy.Policy
	err := row.Scan(&p.Tier, &p.LimitMedication, &p.LimitHospitalTreatment, &p.LimitSurgery, &p.LimitDentalService, &p.Price, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.Policy{}, policy.ErrNotFound
	}
	if err != nil {
		return policy.Policy{}, err
	}
	return p, nil
}

// --- account.Store ---

type accountStore struct{ db *sql.DB }

var _ account.Store = accountStore{}

const accountColumns = `id, email, role, employed, balance, policy_tier, created_at, updated_at`

func (v accountStore) Create(ctx context.Context, a *account.Account) error {
	_, err := v.db.ExecContext(ctx, `
		insert into accounts(id, email, role, employed, balance, policy_tier, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, a.ID, a.Email, a.Role, a.Employed, a.Balance, a.PolicyTier, a.CreatedAt, a.UpdatedAt)
	return err
}

func (v accountStore) ByID(ctx context.Context, id string) (account.Account, error) {
	row := v.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where id=$1`, id)
	return scanAccount(row)
}

func (v accountStore) Apply(ctx context.Context, d account.Decision) (account.Account, ledger.Transaction, error) {
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return account.Account{}, ledger.Transaction{}, err
	}
	defer func() { _ = tx.Rollback() }()

	acc, ltx, err := applyDecision(ctx, tx, d, time.Now().UTC())
	if err != nil {
		return account.Account{}, ledger.Transaction{}, err
	}
	if err := tx.Commit(); err != nil {
		return account.Account{}, ledger.Transaction{}, err
	}
	return acc, ltx, nil
}

func scanAccount(row rowScanner) (account.Account, error) {
	var a account.Account
	err := row.Scan(&a.ID, &a.Email, &a.Role, &a.Employed, &a.Balance, &a.PolicyTier, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, account.ErrNotFound
	}
	if err != nil {
		return account.Account{}, err
	}
	return a, nil
}

// applyDecision mutates the account row and appends its paired ledger row
// inside the caller's transaction. The row lock keeps the balance check and
// the update consistent under concurrent batches.
func applyDecision(ctx context.Context, tx *sql.Tx, d account.Decision, at time.Time) (account.Account, ledger.Transaction, error) {
	var balance int64
	err := tx.QueryRowContext(ctx, `select balance from accounts where id=$1 for update`, d.OwnerID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, ledger.Transaction{}, account.ErrNotFound
	}
	if err != nil {
		return account.Account{}, ledger.Transaction{}, err
	}
	if balance+d.BalanceDelta < 0 {
		return account.Account{}, ledger.Transaction{}, account.ErrInsufficientBalance
	}

	var q string
	var args []any
	if d.NewPolicyTier != nil {
		q = `update accounts set balance = balance + $2, policy_tier = $3, updated_at = $4 where id=$1 returning ` + accountColumns
		args = []any{d.OwnerID, d.BalanceDelta, *d.NewPolicyTier, at}
	} else {
		q = `update accounts set balance = balance + $2, updated_at = $3 where id=$1 returning ` + accountColumns
		args = []any{d.OwnerID, d.BalanceDelta, at}
	}
	acc, err := scanAccount(tx.QueryRowContext(ctx, q, args...))
	if err != nil {
		return account.Account{}, ledger.Transaction{}, err
	}

	ltx, err := insertTransaction(ctx, tx, d.OwnerID, d.Paid, d.Outcome, at)
	if err != nil {
		return account.Account{}, ledger.Transaction{}, err
	}
	return acc, ltx, nil
}

// --- ledger.Service ---

type ledgerService struct{ db *sql.DB }

var _ ledger.Service = ledgerService{}

const txColumns = `id, status, reference, amount, owner_id, created_at, updated_at, deleted`

func (v ledgerService) Append(ctx context.Context, ownerID string, amount int64, status ledger.Status) (ledger.Transaction, error) {
	if amount < 0 {
		return ledger.Transaction{}, ledger.ErrInvalidAmount
	}
	if !status.Valid() {
		return ledger.Transaction{}, ledger.ErrInvalidStatus
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Transaction{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `select exists(select 1 from accounts where id=$1)`, ownerID).Scan(&exists); err != nil {
		return ledger.Transaction{}, err
	}
	if !exists {
		return ledger.Transaction{}, account.ErrNotFound
	}

	ltx, err := insertTransaction(ctx, tx, ownerID, amount, status, time.Now().UTC())
	if err != nil {
		return ledger.Transaction{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.Transaction{}, err
	}
	return ltx, nil
}

func (v ledgerService) Get(ctx context.Context, actor auth.Actor, id string) (ledger.Transaction, error) {
	ltx, err := scanTransaction(v.db.QueryRowContext(ctx, `select `+txColumns+` from transactions where id=$1`, id))
	if err != nil {
		return ledger.Transaction{}, err
	}
	if !actor.Admin {
		if ltx.OwnerID != actor.AccountID || ltx.Deleted {
			return ledger.Transaction{}, ledger.ErrAccessDenied
		}
	}
	return ltx, nil
}

func (v ledgerService) List(ctx context.Context, actor auth.Actor) ([]ledger.Transaction, error) {
	q := `select ` + txColumns + ` from transactions order by updated_at desc`
	args := []any{}
	if !actor.Admin {
		q = `select ` + txColumns + ` from transactions where owner_id=$1 and not deleted order by updated_at desc`
		args = append(args, actor.AccountID)
	}
	rows, err := v.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		ltx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ltx)
	}
	return out, rows.Err()
}

func (v ledgerService) ToggleDeleted(ctx context.Context, id string) (ledger.Transaction, error) {
	row := v.db.QueryRowContext(ctx, `
		update transactions set deleted = not deleted, updated_at = $2
		where id=$1 returning `+txColumns, id, time.Now().UTC())
	return scanTransaction(row)
}

func scanTransaction(row rowScanner) (ledger.Transaction, error) {
	var t ledger.Transaction
	err := row.Scan(&t.ID, &t.Status, &t.Reference, &t.Amount, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt, &t.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.Transaction{}, err
	}
	return t, nil
}

// insertTransaction writes one ledger row, retrying the short reference code
// on a unique violation.
func insertTransaction(ctx context.Context, tx *sql.Tx, ownerID string, amount int64, status ledger.Status, at time.Time) (ledger.Transaction, error) {
	for attempt := 0; attempt < referenceAttempts; attempt++ {
		t := ledger.Transaction{
			ID:        ids.New(),
			Status:    status,
			Reference: ledger.NewReference(),
			Amount:    amount,
			OwnerID:   ownerID,
			CreatedAt: at,
			UpdatedAt: at,
		}
		_, err := tx.ExecContext(ctx, `
			insert into transactions(id, status, reference, amount, owner_id, created_at, updated_at, deleted)
			values ($1,$2,$3,$4,$5,$6,$7,false)
		`, t.ID, t.Status, t.Reference, t.Amount, t.OwnerID, t.CreatedAt, t.UpdatedAt)
		if err == nil {
			return t, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			continue
		}
		return ledger.Transaction{}, err
	}
	return ledger.Transaction{}, errors.New("pg: reference collision retries exhausted")
}

// --- claims.Store ---

type claimStore struct{ db *sql.DB }

var _ claims.Store = claimStore{}

const claimColumns = `id, type, status, requested_amount, attached_document, description, owner_id, created_at, updated_at, deleted`

func (v claimStore) Create(ctx context.Context, c *claims.Claim) error {
	_, err := v.db.ExecContext(ctx, `
		insert into claims(id, type, status, requested_amount, attached_document, description, owner_id, created_at, updated_at, deleted)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,false)
	`, c.ID, c.Type, c.Status, c.RequestedAmount, c.AttachedDocument, c.Description, c.OwnerID, c.CreatedAt, c.UpdatedAt)
	return err
}

func (v claimStore) ByID(ctx context.Context, id string) (claims.Claim, error) {
	row := v.db.QueryRowContext(ctx, `select `+claimColumns+` from claims where id=$1`, id)
	return scanClaim(row)
}

func (v claimStore) All(ctx context.Context) ([]claims.Claim, error) {
	return v.query(ctx, `select `+claimColumns+` from claims order by updated_at desc`)
}

func (v claimStore) ByOwner(ctx context.Context, ownerID string) ([]claims.Claim, error) {
	return v.query(ctx, `select `+claimColumns+` from claims where owner_id=$1 and not deleted order by updated_at desc`, ownerID)
}

func (v claimStore) ByStatus(ctx context.Context, status claims.Status) ([]claims.Claim, error) {
	return v.query(ctx, `select `+claimColumns+` from claims where status=$1 order by updated_at desc`, status)
}

func (v claimStore) ToggleDeleted(ctx context.Context, id string, at time.Time) (claims.Claim, error) {
	row := v.db.QueryRowContext(ctx, `
		update claims set deleted = not deleted, updated_at = $2
		where id=$1 returning `+claimColumns, id, at)
	return scanClaim(row)
}

func (v claimStore) query(ctx context.Context, q string, args ...any) ([]claims.Claim, error) {
	rows, err := v.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []claims.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanClaim(row rowScanner) (claims.Claim, error) {
	var c claims.Claim
	err := row.Scan(&c.ID, &c.Type, &c.Status, &c.RequestedAmount, &c.AttachedDocument, &c.Description, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt, &c.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return claims.Claim{}, claims.ErrNotFound
	}
	if err != nil {
		return claims.Claim{}, err
	}
	return c, nil
}
