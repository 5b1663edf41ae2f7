package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"options-signals/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/signals.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
// Tick inserts are batched; chain snapshots and fired signals are written
// synchronously since they arrive at minute/signal cadence.
type Writer struct {
	db *sql.DB

	// OnCommit reports each successful tick batch commit.
	OnCommit func(ticks int, elapsed time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer connection pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS underlying_prices (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			price  REAL    NOT NULL,
			PRIMARY KEY (symbol, ts)
		);

		CREATE TABLE IF NOT EXISTS option_contracts (
			symbol      TEXT    NOT NULL,
			expiration  TEXT    NOT NULL,
			strike      REAL    NOT NULL,
			type        TEXT    NOT NULL,
			bid         REAL,
			ask         REAL,
			implied_vol REAL    NOT NULL,
			fetched_at  INTEGER NOT NULL,
			PRIMARY KEY (symbol, expiration, strike, type)
		);

		CREATE TABLE IF NOT EXISTS fired_signals (
			id        TEXT    PRIMARY KEY,
			ticker    TEXT    NOT NULL,
			strike    REAL    NOT NULL,
			expiry    TEXT    NOT NULL,
			rationale TEXT    NOT NULL,
			fired_at  INTEGER NOT NULL
		);
	`)
	return err
}

// Run reads ticks from tickCh and inserts them in batched transactions.
// Flushes every batchSize ticks OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or tickCh is closed.
func (w *Writer) Run(ctx context.Context, tickCh <-chan model.Tick) {
	batch := make([]model.Tick, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			elapsed := time.Since(start)
			if w.OnCommit != nil {
				w.OnCommit(len(batch), elapsed)
			}
			log.Printf("[sqlite] committed %d ticks in %v", len(batch), elapsed)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case tick, ok := <-tickCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, tick)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch inserts a batch of ticks in a single transaction.
func (w *Writer) insertBatch(ticks []model.Tick) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO underlying_prices (symbol, ts, price)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, t := range ticks {
		if _, err := stmt.Exec(t.Symbol, t.Timestamp.UnixMilli(), t.Price); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// WriteContracts replaces one symbol's stored option chain with a fresh
// snapshot in a single transaction. Stale contracts from earlier syncs are
// removed so the table always reflects the latest chain.
func (w *Writer) WriteContracts(symbol string, quotes []model.OptionQuote, fetchedAt time.Time) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM option_contracts WHERE symbol = ?`, symbol); err != nil {
		tx.Rollback()
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO option_contracts (symbol, expiration, strike, type, bid, ask, implied_vol, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, q := range quotes {
		var bid, ask sql.NullFloat64
		if q.Bid != nil {
			bid = sql.NullFloat64{Float64: *q.Bid, Valid: true}
		}
		if q.Ask != nil {
			ask = sql.NullFloat64{Float64: *q.Ask, Valid: true}
		}
		_, err := stmt.Exec(symbol, q.ExpiryString(), q.Strike, string(q.OptionType), bid, ask, q.ImpliedVol, fetchedAt.Unix())
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// SaveSignal persists a fired signal. INSERT OR IGNORE keeps replays of the
// same signal ID idempotent.
func (w *Writer) SaveSignal(sig model.StrategySignal) error {
	_, err := w.db.Exec(
		`INSERT OR IGNORE INTO fired_signals (id, ticker, strike, expiry, rationale, fired_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sig.ID.String(), sig.Ticker, sig.Strike, sig.Expiry, sig.Rationale, sig.FiredAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert signal: %w", err)
	}
	return nil
}

// LastTickTimestamp returns the newest stored tick time for a symbol, zero
// time if none exist.
func (w *Writer) LastTickTimestamp(symbol string) (time.Time, error) {
	var ms sql.NullInt64
	err := w.db.QueryRow(
		`SELECT MAX(ts) FROM underlying_prices WHERE symbol = ?`, symbol,
	).Scan(&ms)
	if err != nil {
		return time.Time{}, err
	}
	if !ms.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms.Int64).UTC(), nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
