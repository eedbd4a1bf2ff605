package inspection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Vovarama1992/otk-assistant/internal/database"
)

type repo struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewRepo(db *sql.DB, dialect database.Dialect) Store {
	return &repo{db: db, dialect: dialect}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS inspections (
		id           TEXT PRIMARY KEY,
		token        TEXT NOT NULL UNIQUE,
		candidate_id TEXT NOT NULL,
		user_id      TEXT NOT NULL,
		order_ids    TEXT NOT NULL,
		status       TEXT NOT NULL,
		source_kind  TEXT NOT NULL,
		raw_text     TEXT NOT NULL,
		notes        TEXT NOT NULL DEFAULT '',
		confidence   REAL NOT NULL,
		extracted_at BIGINT NOT NULL,
		confirmed_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inspections_user ON inspections (user_id, confirmed_at)`,
	`CREATE TABLE IF NOT EXISTS inspection_orders (
		inspection_id TEXT NOT NULL REFERENCES inspections (id),
		order_id      TEXT NOT NULL,
		position      INTEGER NOT NULL,
		PRIMARY KEY (inspection_id, order_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inspection_orders_order ON inspection_orders (order_id)`,
}

// Migrate создаёт схему, если её ещё нет.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (r *repo) Save(ctx context.Context, rec *ConfirmedInspection) (string, error) {
	if rec.Token == "" {
		return "", fmt.Errorf("save inspection: empty token")
	}

	orders, err := json.Marshal(rec.OrderIDs)
	if err != nil {
		return "", err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}

	res, err := tx.ExecContext(ctx, r.dialect.Rebind(`
		INSERT INTO inspections (
			id, token, candidate_id, user_id, order_ids, status, source_kind,
			raw_text, notes, confidence, extracted_at, confirmed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (token) DO NOTHING
	`),
		id,
		rec.Token,
		rec.CandidateID,
		rec.UserID,
		string(orders),
		string(rec.Status),
		string(rec.SourceKind),
		rec.RawText,
		rec.Notes,
		rec.Confidence,
		rec.ExtractedAt.UnixMilli(),
		rec.ConfirmedAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("insert inspection: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return "", err
	}

	if inserted == 1 {
		for i, orderID := range rec.OrderIDs {
			if _, err := tx.ExecContext(ctx, r.dialect.Rebind(`
				INSERT INTO inspection_orders (inspection_id, order_id, position)
				VALUES (?, ?, ?)
			`), id, orderID, i); err != nil {
				return "", fmt.Errorf("insert inspection order: %w", err)
			}
		}
	} else {
		if err := tx.QueryRowContext(ctx, r.dialect.Rebind(
			`SELECT id FROM inspections WHERE token = ?`,
		), rec.Token).Scan(&id); err != nil {
			return "", fmt.Errorf("lookup inspection by token: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func (r *repo) Recent(ctx context.Context, userID string, limit int) ([]ConfirmedInspection, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`
		SELECT id, token, candidate_id, user_id, order_ids, status, source_kind,
		       raw_text, notes, confidence, extracted_at, confirmed_at
		FROM inspections
		WHERE user_id = ?
		ORDER BY confirmed_at DESC
		LIMIT ?
	`), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConfirmedInspection
	for rows.Next() {
		var (
			rec                    ConfirmedInspection
			orders, status, source string
			extracted, confirmed   int64
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Token,
			&rec.CandidateID,
			&rec.UserID,
			&orders,
			&status,
			&source,
			&rec.RawText,
			&rec.Notes,
			&rec.Confidence,
			&extracted,
			&confirmed,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(orders), &rec.OrderIDs); err != nil {
			return nil, fmt.Errorf("decode order_ids of %s: %w", rec.ID, err)
		}
		rec.Status = Status(status)
		rec.SourceKind = SourceKind(source)
		rec.ExtractedAt = time.UnixMilli(extracted).UTC()
		rec.ConfirmedAt = time.UnixMilli(confirmed).UTC()
		out = append(out, rec)
	}

	return out, rows.Err()
}
