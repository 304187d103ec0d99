package feeder

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/postgres"
)

// Outcome is the latest known result of an action on one document key.
type Outcome struct {
	Key         string `json:"key"`
	Action      string `json:"action"`
	Attempt     int    `json:"attempt"`
	Succeeded   bool   `json:"succeeded"`
	StatusCode  int    `json:"statusCode"`
	Message     string `json:"message,omitempty"`
	Disposition string `json:"disposition"`
}

// Ledger records outcomes of submitted actions.
type Ledger interface {
	Record(ctx context.Context, outcomes []Outcome) error
}

// OutcomeReader looks up the recorded outcome for one key. A key with no
// outcome yields nil and no error.
type OutcomeReader interface {
	Latest(ctx context.Context, key string) (*Outcome, error)
}

// OutcomeHandler serves GET /outcomes/{key} from r.
func OutcomeHandler(r OutcomeReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		key := req.PathValue("key")
		w.Header().Set("Content-Type", "application/json")
		o, err := r.Latest(req.Context(), key)
		switch {
		case err != nil:
			slog.Error("outcome lookup failed", "key", key, "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "outcome lookup failed"})
		case o == nil:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": fmt.Sprintf("no outcome recorded for %q", key)})
		default:
			_ = json.NewEncoder(w).Encode(o)
		}
	})
}

// Schema creates the table PostgresLedger writes to.
const Schema = `CREATE TABLE IF NOT EXISTS indexing_outcomes (
    index_name  TEXT        NOT NULL,
    doc_key     TEXT        NOT NULL,
    action      TEXT        NOT NULL,
    attempt     INTEGER     NOT NULL,
    succeeded   BOOLEAN     NOT NULL,
    status_code INTEGER     NOT NULL,
    message     TEXT        NOT NULL DEFAULT '',
    disposition TEXT        NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (index_name, doc_key)
)`

const upsertOutcome = `INSERT INTO indexing_outcomes
    (index_name, doc_key, action, attempt, succeeded, status_code, message, disposition, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (index_name, doc_key) DO UPDATE SET
    action      = EXCLUDED.action,
    attempt     = EXCLUDED.attempt,
    succeeded   = EXCLUDED.succeeded,
    status_code = EXCLUDED.status_code,
    message     = EXCLUDED.message,
    disposition = EXCLUDED.disposition,
    updated_at  = EXCLUDED.updated_at`

// PostgresLedger keeps one row per document key in indexing_outcomes.
type PostgresLedger struct {
	db     *postgres.Client
	index  string
	logger *slog.Logger
}

func NewPostgresLedger(db *postgres.Client, index string) *PostgresLedger {
	return &PostgresLedger{
		db:     db,
		index:  index,
		logger: slog.Default().With("component", "outcome-ledger"),
	}
}

// EnsureSchema creates the outcomes table if it does not exist.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("creating indexing_outcomes: %w", err)
	}
	return nil
}

// Record upserts outcomes in one transaction. When a key appears more than
// once, the last outcome wins.
func (l *PostgresLedger) Record(ctx context.Context, outcomes []Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	now := time.Now().UTC()
	err := l.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertOutcome)
		if err != nil {
			return fmt.Errorf("preparing outcome upsert: %w", err)
		}
		defer stmt.Close()
		for _, o := range outcomes {
			if _, err := stmt.ExecContext(ctx,
				l.index, o.Key, o.Action, o.Attempt, o.Succeeded, o.StatusCode, o.Message, o.Disposition, now,
			); err != nil {
				return fmt.Errorf("recording outcome for %s: %w", o.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	l.logger.Debug("outcomes recorded", "outcomes", len(outcomes))
	return nil
}

// Latest returns the recorded outcome for key.
func (l *PostgresLedger) Latest(ctx context.Context, key string) (*Outcome, error) {
	var o Outcome
	err := l.db.DB.QueryRowContext(ctx,
		`SELECT doc_key, action, attempt, succeeded, status_code, message, disposition
		 FROM indexing_outcomes WHERE index_name = $1 AND doc_key = $2`,
		l.index, key,
	).Scan(&o.Key, &o.Action, &o.Attempt, &o.Succeeded, &o.StatusCode, &o.Message, &o.Disposition)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying outcome for %s: %w", key, err)
	}
	return &o, nil
}
