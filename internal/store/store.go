package store

import (
	"context"
	"time"

	"github.com/rajat-sharma-Dev/TempFileStorage/internal/pricing"
)

// PaymentStatus tracks whether a file or payment has been paid for.
// The only legal transition is pending -> completed.
type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusCompleted PaymentStatus = "completed"
)

// Transaction event types.
const (
	EventUploaded         = "uploaded"
	EventPaymentCompleted = "payment_completed"
	EventDeleted          = "deleted"
)

// FileRecord is the durable record of one stored file.
type FileRecord struct {
	ID            string
	Filename      string // original display name
	StorageKey    string // blob id in the storage backend
	Size          int64
	MimeType      string
	DurationDays  int
	PriceUSD      pricing.USD
	ShareLink     string
	ExpiresAt     time.Time
	PaymentStatus PaymentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PaymentRecord tracks one payment attempt for a file. The latest-created
// payment for a file is the authoritative one.
type PaymentRecord struct {
	ID             string
	FileID         string
	AmountUSD      pricing.USD
	Status         PaymentStatus
	SettlementRef  string // opaque on-chain transaction reference
	SettlementData string // JSON payment proof details
	PaidAt         *time.Time
	CreatedAt      time.Time
}

// TransactionEvent is one append-only audit log entry.
type TransactionEvent struct {
	ID        string
	FileID    string
	PaymentID string // optional
	EventType string
	EventData string // JSON payload
	CreatedAt time.Time
}

// Stats contains aggregate statistics about stored files.
type Stats struct {
	TotalFiles     int
	CompletedFiles int
	PendingFiles   int
	ExpiredFiles   int
	TotalBytes     int64
	CompletedBytes int64
	RevenueUSD     pricing.USD
	OldestFile     time.Time
	NewestFile     time.Time
}

// Store defines the interface for lifecycle record persistence.
type Store interface {
	CreateFile(ctx context.Context, f *FileRecord) error
	GetFileByID(ctx context.Context, id string) (*FileRecord, error)
	GetFileByShareLink(ctx context.Context, link string) (*FileRecord, error)
	ListFiles(ctx context.Context, limit int) ([]*FileRecord, error)

	// ListReapableFiles returns files eligible for deletion: completed files
	// past expiry, and pending files past expiry plus the grace window.
	ListReapableFiles(ctx context.Context, now time.Time, pendingGrace time.Duration) ([]*FileRecord, error)

	// MarkFileCompleted promotes a file's payment status from pending to
	// completed. Returns true if this call performed the transition, false
	// if the file was already completed.
	MarkFileCompleted(ctx context.Context, fileID string) (bool, error)

	// DeleteFile removes a file record, cascading its payments and events.
	DeleteFile(ctx context.Context, id string) error

	CreatePayment(ctx context.Context, p *PaymentRecord) error

	// GetPaymentByFileID returns the latest-created payment for a file.
	GetPaymentByFileID(ctx context.Context, fileID string) (*PaymentRecord, error)

	// CompletePayment promotes a payment from pending to completed, stamping
	// paid_at and recording the settlement reference and metadata. Returns
	// true if this call performed the transition.
	CompletePayment(ctx context.Context, paymentID, settlementRef, settlementData string) (bool, error)

	CreateTransaction(ctx context.Context, ev *TransactionEvent) error
	ListTransactionsByFileID(ctx context.Context, fileID string) ([]*TransactionEvent, error)

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
