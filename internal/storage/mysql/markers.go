package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Markers is the SQL-backed device marker store.
type Markers struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Markers { return &Markers{db: db, now: time.Now} }

func (m *Markers) Get(ctx context.Context, device, name string) (string, bool, error) {
	var v string
	err := m.db.QueryRowContext(ctx, getMarkerSQL, device, name, m.now().UTC()).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

func (m *Markers) Set(ctx context.Context, device, name, value string, ttl time.Duration) error {
	_, err := m.db.ExecContext(ctx, upsertMarkerSQL, device, name, value, m.now().UTC().Add(ttl))
	return err
}

func (m *Markers) Clear(ctx context.Context, device, name string) error {
	_, err := m.db.ExecContext(ctx, deleteMarkerSQL, device, name)
	return err
}

// PurgeExpired deletes markers past their expiry and returns how many went.
func (m *Markers) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := m.db.ExecContext(ctx, purgeMarkersSQL, m.now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
