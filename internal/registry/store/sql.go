package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"landregistry/internal/platform/sqldb"
	"landregistry/internal/registry/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
	"landregistry/pkg/platform/tx"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLLedger persists the ledger in PostgreSQL or SQLite. Records are stored
// as JSON documents next to the columns used for lookups and filters.
type SQLLedger struct {
	sqlStore
	conn *sql.DB
}

// NewSQLLedger applies the ledger migrations and returns a ready ledger.
func NewSQLLedger(ctx context.Context, db *sql.DB, dialect sqldb.Dialect) (*SQLLedger, error) {
	if err := sqldb.ApplyMigrations(ctx, db, dialect, migrationFS, "migrations"); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return &SQLLedger{
		sqlStore: sqlStore{db: db, dialect: dialect},
		conn:     db,
	}, nil
}

// RunInTx runs fn in a database transaction. Reads of properties and
// balances inside fn take row locks on PostgreSQL.
func (l *SQLLedger) RunInTx(ctx context.Context, fn func(s Store) error) error {
	return tx.Run(ctx, l.conn, func(sqlTx *sql.Tx) error {
		return fn(&sqlStore{db: sqlTx, dialect: l.dialect})
	})
}

func (l *SQLLedger) Close() error { return l.conn.Close() }

// Ping checks the database connection.
func (l *SQLLedger) Ping(ctx context.Context) error { return l.conn.PingContext(ctx) }

// Multi-statement writes issued outside RunInTx still commit atomically.

func (l *SQLLedger) Credit(ctx context.Context, identity id.Address, amount id.Amount) error {
	return l.RunInTx(ctx, func(s Store) error { return s.Credit(ctx, identity, amount) })
}

func (l *SQLLedger) Debit(ctx context.Context, identity id.Address, amount id.Amount) error {
	return l.RunInTx(ctx, func(s Store) error { return s.Debit(ctx, identity, amount) })
}

func (l *SQLLedger) AppendEvent(ctx context.Context, e *models.Event) error {
	return l.RunInTx(ctx, func(s Store) error { return s.AppendEvent(ctx, e) })
}

func (l *SQLLedger) ListUnpublishedEvents(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		l.dialect.Rebind("SELECT sequence, record FROM events WHERE published = ? ORDER BY sequence LIMIT ?"),
		false, limit)
	if err != nil {
		return nil, fmt.Errorf("list unpublished events: %w", err)
	}
	return scanEvents(rows)
}

func (l *SQLLedger) MarkEventsPublished(ctx context.Context, sequences []uint64) error {
	if len(sequences) == 0 {
		return nil
	}
	seqs := make([]int64, len(sequences))
	for i, s := range sequences {
		seqs[i] = int64(s)
	}
	clause, args := l.dialect.In("sequence", seqs)
	res, err := l.db.ExecContext(ctx, l.dialect.Rebind("UPDATE events SET published = TRUE WHERE "+clause), args...)
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && int(n) != len(sequences) {
		return fmt.Errorf("mark events published: %w", sentinel.ErrNotFound)
	}
	return nil
}

// sqlStore runs the ledger queries against a connection or a transaction.
type sqlStore struct {
	db      tx.DBTX
	dialect sqldb.Dialect
}

func (s *sqlStore) q(query string) string { return s.dialect.Rebind(query) }

func (s *sqlStore) next(ctx context.Context, counter string) (uint64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		s.q("UPDATE ledger_counters SET value = value + 1 WHERE name = ? RETURNING value - 1"),
		counter).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("advance %s counter: %w", counter, err)
	}
	return uint64(value), nil
}

func (s *sqlStore) NextTokenID(ctx context.Context) (id.TokenID, error) {
	v, err := s.next(ctx, "token")
	return id.TokenID(v), err
}

func (s *sqlStore) NextMintRequestID(ctx context.Context) (id.MintRequestID, error) {
	v, err := s.next(ctx, "mint_request")
	return id.MintRequestID(v), err
}

func (s *sqlStore) SaveProperty(ctx context.Context, p *models.Property) error {
	record, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode property: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.q(`
INSERT INTO properties (token_id, owner, status, frozen, record)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (token_id) DO UPDATE SET
    owner = excluded.owner,
    status = excluded.status,
    frozen = excluded.frozen,
    record = excluded.record`),
		int64(p.TokenID), p.Owner.String(), int64(p.Status), p.Frozen, string(record))
	if err != nil {
		return fmt.Errorf("save property: %w", err)
	}
	return nil
}

func (s *sqlStore) FindProperty(ctx context.Context, tokenID id.TokenID) (*models.Property, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT record FROM properties WHERE token_id = ?"+s.dialect.LockSuffix()),
		int64(tokenID)).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find property: %w", err)
	}
	var p models.Property
	if err := json.Unmarshal([]byte(record), &p); err != nil {
		return nil, fmt.Errorf("decode property %s: %w", tokenID, err)
	}
	return &p, nil
}

func (s *sqlStore) ListProperties(ctx context.Context, filter PropertyFilter) ([]*models.Property, error) {
	query := "SELECT record FROM properties WHERE 1 = 1"
	var args []any
	if !filter.Owner.IsZero() {
		query += " AND owner = ?"
		args = append(args, filter.Owner.String())
	}
	if filter.Frozen != nil {
		query += " AND frozen = ?"
		args = append(args, *filter.Frozen)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]int64, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = int64(st)
		}
		clause, inArgs := s.dialect.In("status", statuses)
		query += " AND " + clause
		args = append(args, inArgs...)
	}
	query += " ORDER BY token_id"

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Property, 0)
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		var p models.Property
		if err := json.Unmarshal([]byte(record), &p); err != nil {
			return nil, fmt.Errorf("decode property: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	return out, nil
}

func (s *sqlStore) CountProperties(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties").Scan(&n); err != nil {
		return 0, fmt.Errorf("count properties: %w", err)
	}
	return n, nil
}

func (s *sqlStore) CountPropertiesByStatus(ctx context.Context) ([]models.StatusCount, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, frozen, COUNT(*) FROM properties GROUP BY status, frozen")
	if err != nil {
		return nil, fmt.Errorf("count properties by status: %w", err)
	}
	defer rows.Close()

	out := make([]models.StatusCount, 0)
	for rows.Next() {
		var (
			status int64
			c      models.StatusCount
		)
		if err := rows.Scan(&status, &c.Frozen, &c.Count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		c.Status = models.Status(status)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count properties by status: %w", err)
	}
	return out, nil
}

func (s *sqlStore) CountPendingMintRequests(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.q("SELECT COUNT(*) FROM mint_requests WHERE pending = ?"), true).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending mint requests: %w", err)
	}
	return n, nil
}

func (s *sqlStore) SaveMintRequest(ctx context.Context, r *models.MintRequest) error {
	record, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode mint request: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.q(`
INSERT INTO mint_requests (request_id, pending, record)
VALUES (?, ?, ?)
ON CONFLICT (request_id) DO UPDATE SET
    pending = excluded.pending,
    record = excluded.record`),
		int64(r.ID), r.Pending, string(record))
	if err != nil {
		return fmt.Errorf("save mint request: %w", err)
	}
	return nil
}

func (s *sqlStore) FindMintRequest(ctx context.Context, requestID id.MintRequestID) (*models.MintRequest, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT record FROM mint_requests WHERE request_id = ?"+s.dialect.LockSuffix()),
		int64(requestID)).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find mint request: %w", err)
	}
	var r models.MintRequest
	if err := json.Unmarshal([]byte(record), &r); err != nil {
		return nil, fmt.Errorf("decode mint request %s: %w", requestID, err)
	}
	return &r, nil
}

func (s *sqlStore) ListMintRequests(ctx context.Context, pendingOnly bool) ([]*models.MintRequest, error) {
	query := "SELECT record FROM mint_requests"
	var args []any
	if pendingOnly {
		query += " WHERE pending = ?"
		args = append(args, true)
	}
	query += " ORDER BY request_id"

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list mint requests: %w", err)
	}
	defer rows.Close()

	out := make([]*models.MintRequest, 0)
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan mint request: %w", err)
		}
		var r models.MintRequest
		if err := json.Unmarshal([]byte(record), &r); err != nil {
			return nil, fmt.Errorf("decode mint request: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list mint requests: %w", err)
	}
	return out, nil
}

func (s *sqlStore) SaveRoleGrant(ctx context.Context, g *models.RoleGrant) error {
	record, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode role grant: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.q(`
INSERT INTO role_grants (role, identity, record)
VALUES (?, ?, ?)
ON CONFLICT (role, identity) DO UPDATE SET record = excluded.record`),
		string(g.Role), g.Identity.String(), string(record))
	if err != nil {
		return fmt.Errorf("save role grant: %w", err)
	}
	return nil
}

func (s *sqlStore) DeleteRoleGrant(ctx context.Context, role models.Role, identity id.Address) error {
	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM role_grants WHERE role = ? AND identity = ?"),
		string(role), identity.String())
	if err != nil {
		return fmt.Errorf("delete role grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete role grant: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *sqlStore) FindRoleGrant(ctx context.Context, role models.Role, identity id.Address) (*models.RoleGrant, error) {
	var record string
	err := s.db.QueryRowContext(ctx, s.q("SELECT record FROM role_grants WHERE role = ? AND identity = ?"),
		string(role), identity.String()).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find role grant: %w", err)
	}
	var g models.RoleGrant
	if err := json.Unmarshal([]byte(record), &g); err != nil {
		return nil, fmt.Errorf("decode role grant: %w", err)
	}
	return &g, nil
}

func (s *sqlStore) ListRoleGrants(ctx context.Context, identity id.Address) ([]*models.RoleGrant, error) {
	rows, err := s.db.QueryContext(ctx, s.q("SELECT record FROM role_grants WHERE identity = ? ORDER BY role"),
		identity.String())
	if err != nil {
		return nil, fmt.Errorf("list role grants: %w", err)
	}
	defer rows.Close()

	out := make([]*models.RoleGrant, 0)
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan role grant: %w", err)
		}
		var g models.RoleGrant
		if err := json.Unmarshal([]byte(record), &g); err != nil {
			return nil, fmt.Errorf("decode role grant: %w", err)
		}
		out = append(out, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list role grants: %w", err)
	}
	return out, nil
}

// lockBalance makes sure the row exists and locks it for the rest of the
// transaction, so concurrent credits to a new identity cannot both insert.
func (s *sqlStore) lockBalance(ctx context.Context, identity id.Address) (id.Amount, error) {
	if _, err := s.db.ExecContext(ctx,
		s.q("INSERT INTO balances (identity, amount) VALUES (?, '0') ON CONFLICT (identity) DO NOTHING"),
		identity.String()); err != nil {
		return 0, fmt.Errorf("ensure balance: %w", err)
	}
	return s.balance(ctx, identity, s.dialect.LockSuffix())
}

func (s *sqlStore) balance(ctx context.Context, identity id.Address, suffix string) (id.Amount, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.q("SELECT amount FROM balances WHERE identity = ?"+suffix),
		identity.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	amount, err := id.ParseAmount(raw)
	if err != nil {
		return 0, fmt.Errorf("decode balance for %s: %w", identity, err)
	}
	return amount, nil
}

func (s *sqlStore) setBalance(ctx context.Context, identity id.Address, amount id.Amount) error {
	if _, err := s.db.ExecContext(ctx, s.q("UPDATE balances SET amount = ? WHERE identity = ?"),
		amount.String(), identity.String()); err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	return nil
}

func (s *sqlStore) Credit(ctx context.Context, identity id.Address, amount id.Amount) error {
	current, err := s.lockBalance(ctx, identity)
	if err != nil {
		return err
	}
	sum, ok := current.Add(amount)
	if !ok {
		return sentinel.ErrOverflow
	}
	return s.setBalance(ctx, identity, sum)
}

func (s *sqlStore) Debit(ctx context.Context, identity id.Address, amount id.Amount) error {
	current, err := s.lockBalance(ctx, identity)
	if err != nil {
		return err
	}
	if current < amount {
		return sentinel.ErrInsufficientFunds
	}
	return s.setBalance(ctx, identity, current-amount)
}

func (s *sqlStore) Balance(ctx context.Context, identity id.Address) (id.Amount, error) {
	return s.balance(ctx, identity, "")
}

func (s *sqlStore) AppendEvent(ctx context.Context, e *models.Event) error {
	seq, err := s.next(ctx, "event")
	if err != nil {
		return err
	}
	e.Sequence = seq
	record, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	var tokenID sql.NullInt64
	if e.TokenID != nil {
		tokenID = sql.NullInt64{Int64: int64(*e.TokenID), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, s.q(`
INSERT INTO events (sequence, event_id, token_id, record, published)
VALUES (?, ?, ?, ?, ?)`),
		int64(seq), e.ID.String(), tokenID, string(record), false)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *sqlStore) ListEvents(ctx context.Context, tokenID id.TokenID) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q("SELECT sequence, record FROM events WHERE token_id = ? ORDER BY sequence"),
		int64(tokenID))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]models.Event, error) {
	defer rows.Close()
	out := make([]models.Event, 0)
	for rows.Next() {
		var (
			seq    int64
			record string
		)
		if err := rows.Scan(&seq, &record); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var e models.Event
		if err := json.Unmarshal([]byte(record), &e); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", seq, err)
		}
		e.Sequence = uint64(seq)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return out, nil
}
