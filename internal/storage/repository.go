package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pnlcal/internal/core"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour a Repository speaks.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// rebind rewrites ? placeholders into the dialect's positional form.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const entryColumns = "id, owner_id, date, pnl_amount, num_trades, notes, created_at, updated_at"

const (
	queryListInRange = `SELECT ` + entryColumns + ` FROM pnl_entries
WHERE owner_id = ? AND date >= ? AND date <= ?
ORDER BY date`

	queryGetByDate = `SELECT ` + entryColumns + ` FROM pnl_entries
WHERE owner_id = ? AND date = ?`

	queryUpsert = `INSERT INTO pnl_entries (` + entryColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (owner_id, date) DO UPDATE SET
    pnl_amount = excluded.pnl_amount,
    num_trades = excluded.num_trades,
    notes = excluded.notes,
    updated_at = excluded.updated_at
RETURNING ` + entryColumns

	queryDeleteByDate = `DELETE FROM pnl_entries WHERE owner_id = ? AND date = ?`
)

// Repository is the table-backed entry store shared by the sqlite and
// postgres backends.
type Repository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewRepository wraps an already-open database. No migrations are applied.
func NewRepository(db *sql.DB, dialect Dialect) *Repository {
	return &Repository{db: db, dialect: dialect, now: time.Now}
}

func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite allows a single writer; serialise through one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DialectSQLite, dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewRepository(db, DialectSQLite), nil
}

// NewPostgresRepository connects to the remote table store described by dsn.
func NewPostgresRepository(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DialectPostgres, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewRepository(db, DialectPostgres), nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Dialect() Dialect {
	return r.dialect
}

// timeArg adapts a timestamp to what the driver stores losslessly.
func (r *Repository) timeArg(t time.Time) any {
	if r.dialect == DialectSQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

// ListInRange implements store.EntryLister.
func (r *Repository) ListInRange(ctx context.Context, ownerID string, start, end core.Date) ([]core.Entry, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(queryListInRange), ownerID, start.String(), end.String())
	if err != nil {
		return nil, &core.StoreError{Op: "list", Err: err}
	}
	defer rows.Close()

	entries := make([]core.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, &core.StoreError{Op: "list", Err: err}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StoreError{Op: "list", Err: err}
	}
	return entries, nil
}

// GetByDate implements store.EntryGetter.
func (r *Repository) GetByDate(ctx context.Context, ownerID string, date core.Date) (core.Entry, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.rebind(queryGetByDate), ownerID, date.String())
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, core.ErrNotFound
	}
	if err != nil {
		return core.Entry{}, &core.StoreError{Op: "get", Err: err}
	}
	return e, nil
}

// Upsert implements store.EntryWriter. A conflicting (owner, date) row keeps
// its id and created_at; only the mutable columns are replaced.
func (r *Repository) Upsert(ctx context.Context, ownerID string, date core.Date, pnl decimal.Decimal, numTrades int, notes string) (core.Entry, error) {
	candidate := core.Entry{OwnerID: ownerID, Date: date, PnL: pnl, NumTrades: numTrades, Notes: notes}
	if err := candidate.Validate(); err != nil {
		return core.Entry{}, err
	}

	now := r.timeArg(r.now())
	row := r.db.QueryRowContext(ctx, r.dialect.rebind(queryUpsert),
		uuid.NewString(), ownerID, date.String(), pnl.String(), numTrades, notes, now, now)
	e, err := scanEntry(row)
	if err != nil {
		return core.Entry{}, &core.StoreError{Op: "upsert", Err: err}
	}

	slog.DebugContext(ctx, "Entry upserted",
		"backend", r.dialect.String(),
		"entry_id", e.ID,
		"date", e.Date.String())
	return e, nil
}

// DeleteByDate implements store.EntryDeleter.
func (r *Repository) DeleteByDate(ctx context.Context, ownerID string, date core.Date) error {
	res, err := r.db.ExecContext(ctx, r.dialect.rebind(queryDeleteByDate), ownerID, date.String())
	if err != nil {
		return &core.StoreError{Op: "delete", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &core.StoreError{Op: "delete", Err: err}
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (core.Entry, error) {
	var (
		e         core.Entry
		date      dateValue
		pnl       decimal.Decimal
		createdAt timeValue
		updatedAt timeValue
	)
	if err := s.Scan(&e.ID, &e.OwnerID, &date, &pnl, &e.NumTrades, &e.Notes, &createdAt, &updatedAt); err != nil {
		return core.Entry{}, err
	}
	e.Date = date.Date
	e.PnL = pnl
	e.CreatedAt = createdAt.Time
	e.UpdatedAt = updatedAt.Time
	return e, nil
}
