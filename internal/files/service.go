package files

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/rajat-sharma-Dev/TempFileStorage/internal/logging"
	"github.com/rajat-sharma-Dev/TempFileStorage/internal/pricing"
	"github.com/rajat-sharma-Dev/TempFileStorage/internal/store"
)

// PendingGrace is how long past expiry an unpaid file is kept before the
// reaper reclaims it.
const PendingGrace = 24 * time.Hour

// settlementRefMax caps the stored settlement reference length; the column
// holds an opaque reference, not the full receipt.
const settlementRefMax = 100

// Service owns every write to the lifecycle store and ties blob storage to
// file records.
type Service struct {
	storage Storage
	store   store.Store
}

// NewService creates a new file lifecycle service.
func NewService(storage Storage, st store.Store) *Service {
	return &Service{
		storage: storage,
		store:   st,
	}
}

// NewShareLink produces a short collision-resistant opaque identifier
// (8 base64url characters).
func NewShareLink() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// IsExpired reports whether a file past its expiry instant. The boundary
// itself counts as expired.
func IsExpired(expiry, now time.Time) bool {
	return !now.Before(expiry)
}

// UploadParams describes a validated incoming upload.
type UploadParams struct {
	Filename     string
	MimeType     string
	Size         int64
	DurationDays int
	Price        pricing.USD
}

// RecordUpload persists a settled upload: blob, completed FileRecord,
// completed PaymentRecord and an uploaded audit event. Called only after
// settlement has succeeded. On any persistence failure the blob and partial
// records are removed before returning.
func (s *Service) RecordUpload(ctx context.Context, data io.Reader, p UploadParams, settlementRef, settlementData string) (*store.FileRecord, error) {
	return s.recordUpload(ctx, data, p, store.StatusCompleted, settlementRef, settlementData)
}

// RecordPendingUpload persists an upload whose payment is deferred to the
// downloader: pending FileRecord and PaymentRecord, same audit event.
func (s *Service) RecordPendingUpload(ctx context.Context, data io.Reader, p UploadParams) (*store.FileRecord, error) {
	return s.recordUpload(ctx, data, p, store.StatusPending, "", "")
}

func (s *Service) recordUpload(ctx context.Context, data io.Reader, p UploadParams, status store.PaymentStatus, settlementRef, settlementData string) (*store.FileRecord, error) {
	id := uuid.NewString()

	actualSize, err := s.storage.Save(ctx, id, data, p.Size)
	if err != nil {
		return nil, err
	}

	shareLink, err := NewShareLink()
	if err != nil {
		s.storage.Delete(ctx, id)
		return nil, err
	}

	now := time.Now()
	rec := &store.FileRecord{
		ID:            id,
		Filename:      p.Filename,
		StorageKey:    id,
		Size:          actualSize,
		MimeType:      p.MimeType,
		DurationDays:  p.DurationDays,
		PriceUSD:      p.Price,
		ShareLink:     shareLink,
		ExpiresAt:     now.AddDate(0, 0, p.DurationDays),
		PaymentStatus: status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.CreateFile(ctx, rec); err != nil {
		s.storage.Delete(ctx, id)
		return nil, err
	}

	pay := &store.PaymentRecord{
		ID:             uuid.NewString(),
		FileID:         id,
		AmountUSD:      p.Price,
		Status:         status,
		SettlementRef:  truncate(settlementRef, settlementRefMax),
		SettlementData: settlementData,
		CreatedAt:      now,
	}
	if status == store.StatusCompleted {
		paidAt := now
		pay.PaidAt = &paidAt
	}
	if err := s.store.CreatePayment(ctx, pay); err != nil {
		s.cleanupPartial(ctx, id)
		return nil, err
	}

	eventData, _ := json.Marshal(map[string]any{
		"filename": p.Filename,
		"size":     actualSize,
		"duration": p.DurationDays,
		"price":    p.Price.String(),
		"settled":  status == store.StatusCompleted,
	})
	if err := s.store.CreateTransaction(ctx, &store.TransactionEvent{
		ID:        uuid.NewString(),
		FileID:    id,
		PaymentID: pay.ID,
		EventType: store.EventUploaded,
		EventData: string(eventData),
		CreatedAt: now,
	}); err != nil {
		s.cleanupPartial(ctx, id)
		return nil, err
	}

	return rec, nil
}

func (s *Service) cleanupPartial(ctx context.Context, id string) {
	if err := s.store.DeleteFile(ctx, id); err != nil && err != store.ErrNotFound {
		logging.Internal.Printf("failed to roll back record for %s: %v", id, err)
	}
	if err := s.storage.Delete(ctx, id); err != nil && err != ErrNotFound {
		logging.Internal.Printf("failed to roll back blob for %s: %v", id, err)
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// GetByShareLink retrieves a file record by its share link.
func (s *Service) GetByShareLink(ctx context.Context, link string) (*store.FileRecord, error) {
	return s.store.GetFileByShareLink(ctx, link)
}

// GetByID retrieves a file record by id.
func (s *Service) GetByID(ctx context.Context, id string) (*store.FileRecord, error) {
	return s.store.GetFileByID(ctx, id)
}

// ListFiles returns the most recently created files, up to limit.
func (s *Service) ListFiles(ctx context.Context, limit int) ([]*store.FileRecord, error) {
	return s.store.ListFiles(ctx, limit)
}

// GetPayment returns the authoritative (latest) payment for a file.
func (s *Service) GetPayment(ctx context.Context, fileID string) (*store.PaymentRecord, error) {
	return s.store.GetPaymentByFileID(ctx, fileID)
}

// ListTransactions returns the audit trail for a file, newest first.
func (s *Service) ListTransactions(ctx context.Context, fileID string) ([]*store.TransactionEvent, error) {
	return s.store.ListTransactionsByFileID(ctx, fileID)
}

// PromotePayment marks a file's payment as completed, recording the
// settlement reference and proof metadata. Safe to call concurrently and
// repeatedly: the store performs a conditional pending -> completed update,
// and only the call that wins the file transition appends the audit event.
// Returns whether this call performed the transition.
func (s *Service) PromotePayment(ctx context.Context, fileID, settlementRef, settlementData string) (bool, error) {
	pay, err := s.store.GetPaymentByFileID(ctx, fileID)
	if err != nil {
		return false, err
	}

	if _, err := s.store.CompletePayment(ctx, pay.ID, truncate(settlementRef, settlementRefMax), settlementData); err != nil {
		return false, err
	}

	won, err := s.store.MarkFileCompleted(ctx, fileID)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	file, err := s.store.GetFileByID(ctx, fileID)
	if err != nil {
		return true, err
	}
	eventData, _ := json.Marshal(map[string]any{
		"transactionHash": truncate(settlementRef, settlementRefMax),
		"amount":          file.PriceUSD.String(),
	})
	if err := s.store.CreateTransaction(ctx, &store.TransactionEvent{
		ID:        uuid.NewString(),
		FileID:    fileID,
		PaymentID: pay.ID,
		EventType: store.EventPaymentCompleted,
		EventData: string(eventData),
		CreatedAt: time.Now(),
	}); err != nil {
		logging.Internal.Printf("failed to record payment event for %s: %v", fileID, err)
	}

	return true, nil
}

// ReadSeekCloser combines ReadSeeker and Closer interfaces.
type ReadSeekCloser interface {
	io.ReadSeeker
	io.Closer
}

// Open returns the file's bytes for serving with Range request support
// when the underlying storage provides it.
func (s *Service) Open(ctx context.Context, f *store.FileRecord) (ReadSeekCloser, error) {
	reader, err := s.storage.Load(ctx, f.StorageKey)
	if err != nil {
		return nil, err
	}

	if rsc, ok := reader.(ReadSeekCloser); ok {
		return rsc, nil
	}

	// Fallback: Range requests won't work against this backend
	return &nonSeekableWrapper{reader}, nil
}

type nonSeekableWrapper struct {
	io.ReadCloser
}

func (w *nonSeekableWrapper) Seek(offset int64, whence int) (int64, error) {
	return 0, errors.New("seek not supported")
}

// CleanupError reports one file the reaper could not fully remove.
type CleanupError struct {
	FileID  string `json:"fileId"`
	Message string `json:"message"`
}

// CleanupResult summarizes one reaper run.
type CleanupResult struct {
	Deleted int            `json:"deletedCount"`
	Errors  []CleanupError `json:"errors,omitempty"`
}

// CleanupExpired reclaims files past their retention window: completed files
// past expiry, plus unpaid files past expiry and the grace window. For each
// file it deletes the blob (tolerating one already gone), appends a deleted
// audit event, then deletes the record. Per-file failures are collected and
// never abort the batch.
func (s *Service) CleanupExpired(ctx context.Context) (*CleanupResult, error) {
	reapable, err := s.store.ListReapableFiles(ctx, time.Now(), PendingGrace)
	if err != nil {
		return nil, err
	}

	result := &CleanupResult{}
	for _, f := range reapable {
		if err := s.reapOne(ctx, f); err != nil {
			logging.Reaper.Printf("failed to delete file %s: %v", f.ID, err)
			result.Errors = append(result.Errors, CleanupError{FileID: f.ID, Message: err.Error()})
			continue
		}
		result.Deleted++
	}

	if len(result.Errors) > 0 {
		logging.Reaper.Printf("cleanup completed with %d failures (%d deleted)", len(result.Errors), result.Deleted)
	}
	return result, nil
}

func (s *Service) reapOne(ctx context.Context, f *store.FileRecord) error {
	if err := s.storage.Delete(ctx, f.StorageKey); err != nil && err != ErrNotFound {
		return err
	}

	reason := "expired"
	if f.PaymentStatus == store.StatusPending {
		reason = "unpaid"
	}
	eventData, _ := json.Marshal(map[string]any{
		"filename":   f.Filename,
		"reason":     reason,
		"expiryDate": f.ExpiresAt,
	})
	if err := s.store.CreateTransaction(ctx, &store.TransactionEvent{
		ID:        uuid.NewString(),
		FileID:    f.ID,
		EventType: store.EventDeleted,
		EventData: string(eventData),
		CreatedAt: time.Now(),
	}); err != nil {
		return err
	}

	return s.store.DeleteFile(ctx, f.ID)
}
