package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"pricing-recovery/models"
	"pricing-recovery/utils"
)

// PostgresMirror copies recovered offers into PostgreSQL. It is a mirror
// only: the CSV dataset stays authoritative for reconciliation.
type PostgresMirror struct {
	db   *sql.DB
	site string
}

// NewPostgresMirror opens a connection to PostgreSQL, retrying the ping with
// the given policy, and returns a mirror tagging rows with site.
func NewPostgresMirror(ctx context.Context, dsn, site string, retry *utils.RetryConfig) (*PostgresMirror, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	err = retry.Do(ctx, "postgres ping", func() error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pctx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return &PostgresMirror{db: db, site: site}, nil
}

// EnsureCreated runs the schema migration. The columns argument is unused:
// rows are stored as JSONB so every site shares one table.
func (pm *PostgresMirror) EnsureCreated(_ []string) error {
	_, err := pm.db.Exec(`
		CREATE TABLE IF NOT EXISTS missing_offers (
			id          SERIAL PRIMARY KEY,
			site        VARCHAR(50)  NOT NULL,
			row_data    JSONB        NOT NULL,
			created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_missing_offers_site ON missing_offers(site);
	`)
	if err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// Append batch-inserts rows in insertion order.
func (pm *PostgresMirror) Append(rows []models.Offer) error {
	const batchSize = 50
	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		query, args, err := buildInsert(pm.site, rows[i:end])
		if err != nil {
			return err
		}
		if _, err := pm.db.Exec(query, args...); err != nil {
			return fmt.Errorf("postgres: insert: %w", err)
		}
	}
	return nil
}

func buildInsert(site string, batch []models.Offer) (string, []interface{}, error) {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*2)

	for idx, row := range batch {
		payload, err := json.Marshal(row)
		if err != nil {
			return "", nil, fmt.Errorf("postgres: encode row: %w", err)
		}
		base := idx * 2
		valueStrings = append(valueStrings, fmt.Sprintf("($%d,$%d)", base+1, base+2))
		valueArgs = append(valueArgs, site, string(payload))
	}

	query := fmt.Sprintf(
		"INSERT INTO missing_offers (site, row_data) VALUES %s",
		strings.Join(valueStrings, ","))
	return query, valueArgs, nil
}

// Count returns how many rows the mirror holds for its site.
func (pm *PostgresMirror) Count() (int, error) {
	var n int
	if err := pm.db.QueryRow(`SELECT COUNT(*) FROM missing_offers WHERE site = $1`, pm.site).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return n, nil
}

func (pm *PostgresMirror) Close() error {
	return pm.db.Close()
}
