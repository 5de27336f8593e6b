// Package sqlite persists signals and historical bars. One process owns
// the database; writes are serialized through a single connection.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"signal-enginev1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a SQLite-backed signal and bar store.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open opens (or creates) the database with WAL mode and the schema.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", dbPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			id               TEXT PRIMARY KEY,
			symbol           TEXT    NOT NULL,
			timeframe        TEXT    NOT NULL,
			mode             TEXT    NOT NULL,
			direction        TEXT    NOT NULL,
			entry            REAL    NOT NULL,
			stop_loss        REAL    NOT NULL,
			take_profits     TEXT    NOT NULL,
			confidence       REAL    NOT NULL,
			rationale        TEXT,
			candidate_reason TEXT,
			status           TEXT    NOT NULL,
			created_at       INTEGER NOT NULL,
			triggered_at     INTEGER,
			closed_at        INTEGER,
			outcome          TEXT,
			outcome_detail   TEXT,
			UNIQUE (symbol, timeframe, mode, created_at)
		);

		CREATE INDEX IF NOT EXISTS idx_signals_status ON signals (status);

		CREATE TABLE IF NOT EXISTS bars (
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL,
			PRIMARY KEY (symbol, timeframe, ts)
		);
	`)
	return err
}

// CreateSignal inserts a signal. Re-inserting a signal with the same
// (symbol, timeframe, mode, created_at) is a no-op; the bool reports
// whether a row was actually written.
func (s *Store) CreateSignal(ctx context.Context, sig *model.Signal) (bool, error) {
	tps, err := json.Marshal(sig.TakeProfits)
	if err != nil {
		return false, fmt.Errorf("marshal take profits: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO signals
			(id, symbol, timeframe, mode, direction, entry, stop_loss, take_profits,
			 confidence, rationale, candidate_reason, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sig.ID, sig.Symbol, sig.Timeframe, string(sig.Mode), string(sig.Direction),
		sig.Entry, sig.StopLoss, string(tps),
		sig.Confidence, sig.Rationale, sig.CandidateReason,
		string(sig.Status), sig.CreatedAt.UnixNano())
	if err != nil {
		return false, fmt.Errorf("sqlite insert signal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateSignal writes the mutable lifecycle fields of an existing
// signal. Immutable trade parameters are never touched.
func (s *Store) UpdateSignal(ctx context.Context, sig *model.Signal) error {
	var detail any
	if sig.Detail != nil {
		b, err := json.Marshal(sig.Detail)
		if err != nil {
			return fmt.Errorf("marshal outcome detail: %w", err)
		}
		detail = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE signals
		SET status = ?, triggered_at = ?, closed_at = ?, outcome = ?, outcome_detail = ?
		WHERE id = ?
	`, string(sig.Status), nanoOrNil(sig.TriggeredAt), nanoOrNil(sig.ClosedAt),
		nullEmpty(string(sig.Outcome)), detail, sig.ID)
	if err != nil {
		return fmt.Errorf("sqlite update signal %s: %w", sig.ID, err)
	}
	return nil
}

// GetSignal loads one signal by id. Returns (nil, nil) when absent.
func (s *Store) GetSignal(ctx context.Context, id string) (*model.Signal, error) {
	row := s.db.QueryRowContext(ctx, selectSignal+` WHERE id = ?`, id)
	sig, err := scanSignal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sig, err
}

// OpenSignals returns every signal in a non-terminal status, oldest
// first, for the lifecycle pass of a scan cycle.
func (s *Store) OpenSignals(ctx context.Context) ([]*model.Signal, error) {
	rows, err := s.db.QueryContext(ctx, selectSignal+`
		WHERE status IN ('pending', 'triggered')
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query open signals: %w", err)
	}
	defer rows.Close()

	var sigs []*model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan signal: %w", err)
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

const selectSignal = `
	SELECT id, symbol, timeframe, mode, direction, entry, stop_loss, take_profits,
	       confidence, rationale, candidate_reason, status, created_at,
	       triggered_at, closed_at, outcome, outcome_detail
	FROM signals`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (*model.Signal, error) {
	var (
		sig                   model.Signal
		mode, dir, status     string
		tps                   string
		createdNs             int64
		triggeredNs, closedNs sql.NullInt64
		outcome, detail       sql.NullString
	)
	err := row.Scan(&sig.ID, &sig.Symbol, &sig.Timeframe, &mode, &dir,
		&sig.Entry, &sig.StopLoss, &tps,
		&sig.Confidence, &sig.Rationale, &sig.CandidateReason,
		&status, &createdNs, &triggeredNs, &closedNs, &outcome, &detail)
	if err != nil {
		return nil, err
	}

	sig.Mode = model.Mode(mode)
	sig.Direction = model.Direction(dir)
	sig.Status = model.Status(status)
	sig.CreatedAt = time.Unix(0, createdNs).UTC()
	if triggeredNs.Valid {
		t := time.Unix(0, triggeredNs.Int64).UTC()
		sig.TriggeredAt = &t
	}
	if closedNs.Valid {
		t := time.Unix(0, closedNs.Int64).UTC()
		sig.ClosedAt = &t
	}
	if outcome.Valid {
		sig.Outcome = model.Outcome(outcome.String)
	}
	if err := json.Unmarshal([]byte(tps), &sig.TakeProfits); err != nil {
		return nil, fmt.Errorf("unmarshal take profits for %s: %w", sig.ID, err)
	}
	if detail.Valid {
		var d model.OutcomeDetail
		if err := json.Unmarshal([]byte(detail.String), &d); err != nil {
			return nil, fmt.Errorf("unmarshal outcome detail for %s: %w", sig.ID, err)
		}
		sig.Detail = &d
	}
	return &sig, nil
}

// SaveBars inserts bars in one transaction for later replay. Existing
// (symbol, timeframe, ts) rows are overwritten.
func (s *Store) SaveBars(ctx context.Context, symbol, timeframe string, bars []model.Bar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars (symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(symbol, timeframe, b.TS.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ReadBars returns stored bars after a timestamp, oldest first.
func (s *Store) ReadBars(ctx context.Context, symbol, timeframe string, afterTS int64) ([]model.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timeframe = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, timeframe, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsUnix int64
		if err := rows.Scan(&tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan bar: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nanoOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func nullEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
