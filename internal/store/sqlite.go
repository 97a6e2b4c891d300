package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rajat-sharma-Dev/TempFileStorage/internal/pricing"
)

var ErrNotFound = errors.New("not found")

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Cascade deletes from files to payments and transactions happen at
	// the storage layer and require foreign key enforcement.
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			storage_key TEXT NOT NULL,
			size INTEGER NOT NULL,
			mime_type TEXT NOT NULL,
			duration_days INTEGER NOT NULL,
			price_usd INTEGER NOT NULL,
			share_link TEXT NOT NULL UNIQUE,
			expires_at DATETIME NOT NULL,
			payment_status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS payments (
			id TEXT PRIMARY KEY,
			file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
			amount_usd INTEGER NOT NULL,
			payment_status TEXT NOT NULL DEFAULT 'pending',
			settlement_ref TEXT NOT NULL DEFAULT '',
			settlement_data TEXT NOT NULL DEFAULT '',
			paid_at DATETIME,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
			payment_id TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL,
			event_data TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_files_expires ON files(expires_at);
		CREATE INDEX IF NOT EXISTS idx_payments_file ON payments(file_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_transactions_file ON transactions(file_id, created_at);
	`)
	return err
}

const fileColumns = `id, filename, storage_key, size, mime_type, duration_days,
	price_usd, share_link, expires_at, payment_status, created_at, updated_at`

func scanFile(row interface{ Scan(...any) error }) (*FileRecord, error) {
	var f FileRecord
	var price int64
	var status string
	err := row.Scan(&f.ID, &f.Filename, &f.StorageKey, &f.Size, &f.MimeType,
		&f.DurationDays, &price, &f.ShareLink, &f.ExpiresAt, &status,
		&f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	f.PriceUSD = pricing.USD(price)
	f.PaymentStatus = PaymentStatus(status)
	return &f, nil
}

func (s *SQLiteStore) CreateFile(ctx context.Context, f *FileRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (`+fileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.Filename, f.StorageKey, f.Size, f.MimeType, f.DurationDays,
		int64(f.PriceUSD), f.ShareLink, f.ExpiresAt, string(f.PaymentStatus),
		f.CreatedAt, f.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetFileByID(ctx context.Context, id string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	return scanFile(row)
}

func (s *SQLiteStore) GetFileByShareLink(ctx context.Context, link string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE share_link = ?`, link)
	return scanFile(row)
}

func (s *SQLiteStore) ListFiles(ctx context.Context, limit int) ([]*FileRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFiles(rows)
}

func (s *SQLiteStore) ListReapableFiles(ctx context.Context, now time.Time, pendingGrace time.Duration) ([]*FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files
		WHERE (payment_status = 'completed' AND expires_at <= ?)
		   OR (payment_status = 'pending' AND expires_at <= ?)
	`, now, now.Add(-pendingGrace))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFiles(rows)
}

func collectFiles(rows *sql.Rows) ([]*FileRecord, error) {
	var files []*FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *SQLiteStore) MarkFileCompleted(ctx context.Context, fileID string) (bool, error) {
	// Conditional update: only the pending -> completed transition is legal,
	// and concurrent promotions must not both report success.
	result, err := s.db.ExecContext(ctx, `
		UPDATE files SET payment_status = 'completed', updated_at = ?
		WHERE id = ? AND payment_status = 'pending'
	`, time.Now(), fileID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows > 0 {
		return true, nil
	}

	// No transition happened: distinguish "already completed" from "no such file".
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT payment_status FROM files WHERE id = ?`, fileID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	return false, err
}

func (s *SQLiteStore) DeleteFile(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CreatePayment(ctx context.Context, p *PaymentRecord) error {
	var paidAt any
	if p.PaidAt != nil {
		paidAt = *p.PaidAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, file_id, amount_usd, payment_status, settlement_ref, settlement_data, paid_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.FileID, int64(p.AmountUSD), string(p.Status), p.SettlementRef,
		p.SettlementData, paidAt, p.CreatedAt)
	return err
}

func (s *SQLiteStore) GetPaymentByFileID(ctx context.Context, fileID string) (*PaymentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_id, amount_usd, payment_status, settlement_ref, settlement_data, paid_at, created_at
		FROM payments WHERE file_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, fileID)

	var p PaymentRecord
	var amount int64
	var status string
	var paidAt sql.NullTime
	err := row.Scan(&p.ID, &p.FileID, &amount, &status, &p.SettlementRef,
		&p.SettlementData, &paidAt, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.AmountUSD = pricing.USD(amount)
	p.Status = PaymentStatus(status)
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	return &p, nil
}

func (s *SQLiteStore) CompletePayment(ctx context.Context, paymentID, settlementRef, settlementData string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET payment_status = 'completed', settlement_ref = ?, settlement_data = ?, paid_at = ?
		WHERE id = ? AND payment_status = 'pending'
	`, settlementRef, settlementData, time.Now(), paymentID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows > 0 {
		return true, nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT payment_status FROM payments WHERE id = ?`, paymentID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	return false, err
}

func (s *SQLiteStore) CreateTransaction(ctx context.Context, ev *TransactionEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, file_id, payment_id, event_type, event_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.FileID, ev.PaymentID, ev.EventType, ev.EventData, ev.CreatedAt)
	return err
}

func (s *SQLiteStore) ListTransactionsByFileID(ctx context.Context, fileID string) ([]*TransactionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_id, payment_id, event_type, event_data, created_at
		FROM transactions WHERE file_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*TransactionEvent
	for rows.Next() {
		var ev TransactionEvent
		if err := rows.Scan(&ev.ID, &ev.FileID, &ev.PaymentID, &ev.EventType, &ev.EventData, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN payment_status = 'completed' THEN 1 ELSE 0 END), 0) as completed_count,
			COALESCE(SUM(CASE WHEN payment_status = 'pending' THEN 1 ELSE 0 END), 0) as pending_count,
			COALESCE(SUM(CASE WHEN expires_at <= datetime('now') THEN 1 ELSE 0 END), 0) as expired_count,
			COALESCE(SUM(size), 0) as total_bytes,
			COALESCE(SUM(CASE WHEN payment_status = 'completed' THEN size ELSE 0 END), 0) as completed_bytes,
			COALESCE(SUM(CASE WHEN payment_status = 'completed' THEN price_usd ELSE 0 END), 0) as revenue,
			COALESCE(MIN(created_at), '') as oldest,
			COALESCE(MAX(created_at), '') as newest
		FROM files
	`)

	var revenue int64
	var oldest, newest string
	err := row.Scan(
		&stats.TotalFiles,
		&stats.CompletedFiles,
		&stats.PendingFiles,
		&stats.ExpiredFiles,
		&stats.TotalBytes,
		&stats.CompletedBytes,
		&revenue,
		&oldest,
		&newest,
	)
	if err != nil {
		return nil, err
	}
	stats.RevenueUSD = pricing.USD(revenue)

	if oldest != "" {
		stats.OldestFile = parseSQLiteTime(oldest)
	}
	if newest != "" {
		stats.NewestFile = parseSQLiteTime(newest)
	}

	return stats, nil
}

func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05-07:00", "2006-01-02T15:04:05Z", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
