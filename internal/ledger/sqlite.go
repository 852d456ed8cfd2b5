package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"PickLedger/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists entries in a SQLite database.
//
// Every mutation is a single statement, so SQLite's own write serialization
// gives per-row atomicity without a process-wide lock. The dedup rule is a
// UNIQUE index rather than a check-then-insert.
type SQLiteStore struct {
	db  *sqlx.DB
	loc *time.Location
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
// Calendar days are computed in loc; nil means time.Local.
func NewSQLiteStore(dbPath string, loc *time.Location) (*SQLiteStore, error) {
	if loc == nil {
		loc = time.Local
	}
	// WAL lets report reads run alongside the refresher's writes.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, loc: loc}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Str("tz", loc.String()).Msg("sqlite ledger opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS recommendation_entries (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol           TEXT    NOT NULL,
			name             TEXT    NOT NULL,
			category         TEXT    NOT NULL,
			rec_action       TEXT    NOT NULL DEFAULT '',
			ai_score         INTEGER NOT NULL DEFAULT 0,
			signal           TEXT    NOT NULL DEFAULT '',
			reason           TEXT    NOT NULL DEFAULT '',
			entry_price      REAL    NOT NULL CHECK (entry_price > 0),
			entry_date       INTEGER NOT NULL,
			entry_day        TEXT    NOT NULL,
			current_price    REAL,
			price_updated_at INTEGER,
			status           TEXT    NOT NULL DEFAULT 'open',
			close_price      REAL,
			close_date       INTEGER,
			close_reason     TEXT,
			CHECK (
				(status = 'open' AND close_price IS NULL AND close_date IS NULL AND close_reason IS NULL)
				OR (status = 'closed' AND close_price IS NOT NULL AND close_date IS NOT NULL AND close_reason IS NOT NULL)
			)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_dedup ON recommendation_entries(symbol, category, entry_day)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_status_symbol ON recommendation_entries(status, symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_date ON recommendation_entries(entry_date)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec %q: %w", q[:40], err)
		}
	}
	return nil
}

const entryColumns = `id, symbol, name, category, rec_action, ai_score, signal, reason,
	entry_price, entry_date, entry_day, current_price, price_updated_at,
	status, close_price, close_date, close_reason`

// entryRow is the scan target for recommendation_entries.
type entryRow struct {
	ID             int64           `db:"id"`
	Symbol         string          `db:"symbol"`
	Name           string          `db:"name"`
	Category       string          `db:"category"`
	Action         string          `db:"rec_action"`
	AIScore        int             `db:"ai_score"`
	Signal         string          `db:"signal"`
	Reason         string          `db:"reason"`
	EntryPrice     float64         `db:"entry_price"`
	EntryDate      int64           `db:"entry_date"`
	EntryDay       string          `db:"entry_day"`
	CurrentPrice   sql.NullFloat64 `db:"current_price"`
	PriceUpdatedAt sql.NullInt64   `db:"price_updated_at"`
	Status         string          `db:"status"`
	ClosePrice     sql.NullFloat64 `db:"close_price"`
	CloseDate      sql.NullInt64   `db:"close_date"`
	CloseReason    sql.NullString  `db:"close_reason"`
}

func (s *SQLiteStore) toEntry(r *entryRow) model.Entry {
	e := model.Entry{
		ID:         r.ID,
		Symbol:     r.Symbol,
		Name:       r.Name,
		Category:   model.Category(r.Category),
		Action:     r.Action,
		AIScore:    r.AIScore,
		Signal:     r.Signal,
		Reason:     r.Reason,
		EntryPrice: r.EntryPrice,
		EntryDate:  s.fromMillis(r.EntryDate),
		Status:     model.Status(r.Status),
	}
	if r.CurrentPrice.Valid {
		e.CurrentPrice = r.CurrentPrice.Float64
	}
	if r.PriceUpdatedAt.Valid {
		e.PriceUpdatedAt = s.fromMillis(r.PriceUpdatedAt.Int64)
	}
	if r.ClosePrice.Valid {
		e.ClosePrice = r.ClosePrice.Float64
	}
	if r.CloseDate.Valid {
		e.CloseDate = s.fromMillis(r.CloseDate.Int64)
	}
	if r.CloseReason.Valid {
		e.CloseReason = model.CloseReason(r.CloseReason.String)
	}
	return e
}

func (s *SQLiteStore) fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).In(s.loc)
}

func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nullPrice(p float64) sql.NullFloat64 {
	if p <= 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p, Valid: true}
}

func (s *SQLiteStore) Insert(ctx context.Context, e *model.Entry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO recommendation_entries
		(symbol, name, category, rec_action, ai_score, signal, reason,
		 entry_price, entry_date, entry_day, current_price, price_updated_at, status)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol, category, entry_day) DO NOTHING`,
		e.Symbol, e.Name, string(e.Category), e.Action, e.AIScore, e.Signal, e.Reason,
		e.EntryPrice, e.EntryDate.UnixMilli(), model.DayKey(e.EntryDate, s.loc),
		nullPrice(e.CurrentPrice), nullMillis(e.PriceUpdatedAt), string(model.StatusOpen),
	)
	if err != nil {
		return 0, fmt.Errorf("insert entry %s: %w", e.Symbol, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert entry %s: %w", e.Symbol, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("insert entry %s/%s: %w", e.Symbol, e.Category, ErrDuplicate)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert entry %s: last id: %w", e.Symbol, err)
	}
	e.ID = id
	e.Status = model.StatusOpen
	return id, nil
}

func (s *SQLiteStore) FindBySymbolCategoryDay(ctx context.Context, symbol string, category model.Category, day time.Time) (*model.Entry, error) {
	var r entryRow
	err := s.db.GetContext(ctx, &r,
		`SELECT `+entryColumns+` FROM recommendation_entries
		 WHERE symbol = ? AND category = ? AND entry_day = ? LIMIT 1`,
		symbol, string(category), model.DayKey(day, s.loc))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find entry %s/%s: %w", symbol, category, err)
	}
	e := s.toEntry(&r)
	return &e, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*model.Entry, error) {
	var r entryRow
	err := s.db.GetContext(ctx, &r, `SELECT `+entryColumns+` FROM recommendation_entries WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %d: %w", id, err)
	}
	e := s.toEntry(&r)
	return &e, nil
}

func whereClause(f Filter) (string, []any) {
	var conds []string
	var args []any
	if !f.From.IsZero() {
		conds = append(conds, "entry_date >= ?")
		args = append(args, f.From.UnixMilli())
	}
	if !f.To.IsZero() {
		conds = append(conds, "entry_date <= ?")
		args = append(args, f.To.UnixMilli())
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(f.Category))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *SQLiteStore) Query(ctx context.Context, f Filter, page, pageSize int) (Page, error) {
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	out := Page{Entries: []model.Entry{}, Page: page, PageSize: pageSize}

	where, args := whereClause(f)
	if err := s.db.GetContext(ctx, &out.Total, `SELECT COUNT(*) FROM recommendation_entries`+where, args...); err != nil {
		return Page{}, fmt.Errorf("count entries: %w", err)
	}
	// The second bound keeps the offset from overflowing.
	if page < 1 || pageSize < 1 || page-1 > math.MaxInt/pageSize {
		return out, nil
	}

	var rows []entryRow
	q := `SELECT ` + entryColumns + ` FROM recommendation_entries` + where +
		` ORDER BY entry_date DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return Page{}, fmt.Errorf("query entries: %w", err)
	}
	for i := range rows {
		out.Entries = append(out.Entries, s.toEntry(&rows[i]))
	}
	return out, nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]model.Entry, error) {
	where, args := whereClause(f)
	var rows []entryRow
	q := `SELECT ` + entryColumns + ` FROM recommendation_entries` + where + ` ORDER BY entry_date DESC, id DESC`
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	entries := make([]model.Entry, 0, len(rows))
	for i := range rows {
		entries = append(entries, s.toEntry(&rows[i]))
	}
	return entries, nil
}

func (s *SQLiteStore) ListOpenSymbols(ctx context.Context) ([]string, error) {
	symbols := []string{}
	err := s.db.SelectContext(ctx, &symbols,
		`SELECT DISTINCT symbol FROM recommendation_entries WHERE status = ? ORDER BY symbol`,
		string(model.StatusOpen))
	if err != nil {
		return nil, fmt.Errorf("list open symbols: %w", err)
	}
	return symbols, nil
}

func (s *SQLiteStore) UpdatePrice(ctx context.Context, symbol string, price float64, at time.Time) (int64, error) {
	if !model.ValidPrice(price) {
		return 0, &model.ValidationError{Field: "price", Reason: "must be positive and finite"}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE recommendation_entries SET current_price = ?, price_updated_at = ?
		 WHERE symbol = ? AND status = ?`,
		price, at.UnixMilli(), symbol, string(model.StatusOpen))
	if err != nil {
		return 0, fmt.Errorf("update price %s: %w", symbol, err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) ClosePosition(ctx context.Context, id int64, price float64, at time.Time, reason model.CloseReason) error {
	if !model.ValidPrice(price) {
		return &model.ValidationError{Field: "close_price", Reason: "must be positive and finite"}
	}
	if reason == "" {
		return &model.ValidationError{Field: "reason", Reason: "required"}
	}

	// The status predicate makes the transition happen at most once; the
	// entry_date predicate keeps close_date >= entry_date.
	res, err := s.db.ExecContext(ctx,
		`UPDATE recommendation_entries
		 SET status = ?, close_price = ?, close_date = ?, close_reason = ?
		 WHERE id = ? AND status = ? AND entry_date <= ?`,
		string(model.StatusClosed), price, at.UnixMilli(), string(reason),
		id, string(model.StatusOpen), at.UnixMilli())
	if err != nil {
		return fmt.Errorf("close entry %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close entry %d: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !e.IsOpen() {
		return fmt.Errorf("entry %d: %w", id, model.ErrAlreadyClosed)
	}
	return &model.ValidationError{Field: "close_date", Reason: "precedes entry date"}
}

func (s *SQLiteStore) Close() error {
	log.Info().Msg("closing sqlite ledger")
	return s.db.Close()
}
