package files

import (
	"bytes"
	"context"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/rajat-sharma-Dev/TempFileStorage/internal/store"
)

// mockStorage implements Storage for testing.
type mockStorage struct {
	files map[string][]byte
}

func newMockStorage() *mockStorage {
	return &mockStorage{files: make(map[string][]byte)}
}

func (m *mockStorage) Save(ctx context.Context, key string, data io.Reader, size int64) (int64, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	m.files[key] = buf
	return int64(len(buf)), nil
}

func (m *mockStorage) Load(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.files[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	if _, ok := m.files[key]; !ok {
		return ErrNotFound
	}
	delete(m.files, key)
	return nil
}

// mockStore implements store.Store for testing.
type mockStore struct {
	files        map[string]*store.FileRecord
	payments     map[string]*store.PaymentRecord
	transactions []*store.TransactionEvent
}

func newMockStore() *mockStore {
	return &mockStore{
		files:    make(map[string]*store.FileRecord),
		payments: make(map[string]*store.PaymentRecord),
	}
}

func (m *mockStore) CreateFile(ctx context.Context, f *store.FileRecord) error {
	m.files[f.ID] = f
	return nil
}

func (m *mockStore) GetFileByID(ctx context.Context, id string) (*store.FileRecord, error) {
	f, ok := m.files[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return f, nil
}

func (m *mockStore) GetFileByShareLink(ctx context.Context, link string) (*store.FileRecord, error) {
	for _, f := range m.files {
		if f.ShareLink == link {
			return f, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) ListFiles(ctx context.Context, limit int) ([]*store.FileRecord, error) {
	var out []*store.FileRecord
	for _, f := range m.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) ListReapableFiles(ctx context.Context, now time.Time, pendingGrace time.Duration) ([]*store.FileRecord, error) {
	var out []*store.FileRecord
	for _, f := range m.files {
		switch f.PaymentStatus {
		case store.StatusCompleted:
			if !now.Before(f.ExpiresAt) {
				out = append(out, f)
			}
		case store.StatusPending:
			if !now.Before(f.ExpiresAt.Add(pendingGrace)) {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func (m *mockStore) MarkFileCompleted(ctx context.Context, fileID string) (bool, error) {
	f, ok := m.files[fileID]
	if !ok {
		return false, store.ErrNotFound
	}
	if f.PaymentStatus == store.StatusCompleted {
		return false, nil
	}
	f.PaymentStatus = store.StatusCompleted
	f.UpdatedAt = time.Now()
	return true, nil
}

func (m *mockStore) DeleteFile(ctx context.Context, id string) error {
	if _, ok := m.files[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.files, id)
	for pid, p := range m.payments {
		if p.FileID == id {
			delete(m.payments, pid)
		}
	}
	var kept []*store.TransactionEvent
	for _, ev := range m.transactions {
		if ev.FileID != id {
			kept = append(kept, ev)
		}
	}
	m.transactions = kept
	return nil
}

func (m *mockStore) CreatePayment(ctx context.Context, p *store.PaymentRecord) error {
	m.payments[p.ID] = p
	return nil
}

func (m *mockStore) GetPaymentByFileID(ctx context.Context, fileID string) (*store.PaymentRecord, error) {
	var latest *store.PaymentRecord
	for _, p := range m.payments {
		if p.FileID != fileID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (m *mockStore) CompletePayment(ctx context.Context, paymentID, settlementRef, settlementData string) (bool, error) {
	p, ok := m.payments[paymentID]
	if !ok {
		return false, store.ErrNotFound
	}
	if p.Status == store.StatusCompleted {
		return false, nil
	}
	p.Status = store.StatusCompleted
	p.SettlementRef = settlementRef
	p.SettlementData = settlementData
	now := time.Now()
	p.PaidAt = &now
	return true, nil
}

func (m *mockStore) CreateTransaction(ctx context.Context, ev *store.TransactionEvent) error {
	m.transactions = append(m.transactions, ev)
	return nil
}

func (m *mockStore) ListTransactionsByFileID(ctx context.Context, fileID string) ([]*store.TransactionEvent, error) {
	var out []*store.TransactionEvent
	for _, ev := range m.transactions {
		if ev.FileID == fileID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockStore) Stats(ctx context.Context) (*store.Stats, error) {
	return &store.Stats{}, nil
}

func (m *mockStore) Close() error {
	return nil
}

func eventsOfType(m *mockStore, fileID, eventType string) []*store.TransactionEvent {
	var out []*store.TransactionEvent
	for _, ev := range m.transactions {
		if ev.FileID == fileID && ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func uploadParams() UploadParams {
	return UploadParams{
		Filename:     "report.pdf",
		MimeType:     "application/pdf",
		Size:         12,
		DurationDays: 7,
		Price:        150_000,
	}
}

func TestService_RecordUpload(t *testing.T) {
	storage := newMockStorage()
	st := newMockStore()
	svc := NewService(storage, st)

	ctx := context.Background()
	content := []byte("file content")
	before := time.Now()

	rec, err := svc.RecordUpload(ctx, bytes.NewReader(content), uploadParams(), "0xabc123", `{"network":"base-sepolia"}`)
	if err != nil {
		t.Fatalf("record upload failed: %v", err)
	}

	if rec.ID == "" {
		t.Error("expected non-empty ID")
	}
	if rec.ShareLink == "" {
		t.Error("expected non-empty share link")
	}
	if rec.Size != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), rec.Size)
	}
	if rec.PaymentStatus != store.StatusCompleted {
		t.Errorf("expected completed status, got %s", rec.PaymentStatus)
	}

	// Expiry is creation plus the retention window
	expected := before.AddDate(0, 0, 7)
	if rec.ExpiresAt.Before(expected.Add(-time.Minute)) || rec.ExpiresAt.After(expected.Add(time.Minute)) {
		t.Errorf("expected ExpiresAt around %v, got %v", expected, rec.ExpiresAt)
	}

	if _, ok := storage.files[rec.StorageKey]; !ok {
		t.Error("blob should be stored under the record's storage key")
	}

	pay, err := st.GetPaymentByFileID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("payment lookup failed: %v", err)
	}
	if pay.Status != store.StatusCompleted {
		t.Errorf("expected completed payment, got %s", pay.Status)
	}
	if pay.SettlementRef != "0xabc123" {
		t.Errorf("expected settlement ref 0xabc123, got %q", pay.SettlementRef)
	}
	if pay.PaidAt == nil {
		t.Error("expected PaidAt to be stamped")
	}
	if pay.AmountUSD != 150_000 {
		t.Errorf("expected amount 150000, got %d", pay.AmountUSD)
	}

	if got := eventsOfType(st, rec.ID, store.EventUploaded); len(got) != 1 {
		t.Errorf("expected 1 uploaded event, got %d", len(got))
	}
}

func TestService_RecordUpload_TruncatesSettlementRef(t *testing.T) {
	svc := NewService(newMockStorage(), newMockStore())
	ctx := context.Background()

	long := "0x" + string(bytes.Repeat([]byte("f"), 200))
	rec, err := svc.RecordUpload(ctx, bytes.NewReader([]byte("x")), uploadParams(), long, "")
	if err != nil {
		t.Fatalf("record upload failed: %v", err)
	}

	pay, _ := svc.GetPayment(ctx, rec.ID)
	if len(pay.SettlementRef) != 100 {
		t.Errorf("expected settlement ref truncated to 100 chars, got %d", len(pay.SettlementRef))
	}
}

func TestService_RecordPendingUpload(t *testing.T) {
	storage := newMockStorage()
	st := newMockStore()
	svc := NewService(storage, st)
	ctx := context.Background()

	rec, err := svc.RecordPendingUpload(ctx, bytes.NewReader([]byte("deferred")), uploadParams())
	if err != nil {
		t.Fatalf("record pending upload failed: %v", err)
	}

	if rec.PaymentStatus != store.StatusPending {
		t.Errorf("expected pending status, got %s", rec.PaymentStatus)
	}
	pay, err := svc.GetPayment(ctx, rec.ID)
	if err != nil {
		t.Fatalf("payment lookup failed: %v", err)
	}
	if pay.Status != store.StatusPending {
		t.Errorf("expected pending payment, got %s", pay.Status)
	}
	if pay.PaidAt != nil {
		t.Error("pending payment should not have PaidAt")
	}
}

// failingStore wraps mockStore to fail payment creation, exercising the
// rollback path.
type failingStore struct {
	*mockStore
}

func (f *failingStore) CreatePayment(ctx context.Context, p *store.PaymentRecord) error {
	return context.DeadlineExceeded
}

func TestService_RecordUpload_RollsBackOnFailure(t *testing.T) {
	storage := newMockStorage()
	st := &failingStore{newMockStore()}
	svc := NewService(storage, st)
	ctx := context.Background()

	_, err := svc.RecordUpload(ctx, bytes.NewReader([]byte("doomed")), uploadParams(), "0xdead", "")
	if err == nil {
		t.Fatal("expected error")
	}

	if len(storage.files) != 0 {
		t.Error("blob should be removed after persistence failure")
	}
	if len(st.files) != 0 {
		t.Error("file record should be removed after persistence failure")
	}
}

func TestService_PromotePayment(t *testing.T) {
	storage := newMockStorage()
	st := newMockStore()
	svc := NewService(storage, st)
	ctx := context.Background()

	rec, err := svc.RecordPendingUpload(ctx, bytes.NewReader([]byte("deferred")), uploadParams())
	if err != nil {
		t.Fatalf("record pending upload failed: %v", err)
	}

	won, err := svc.PromotePayment(ctx, rec.ID, "0xfeed", `{"proof":true}`)
	if err != nil {
		t.Fatalf("promote failed: %v", err)
	}
	if !won {
		t.Error("first promotion should win the transition")
	}

	got, _ := svc.GetByID(ctx, rec.ID)
	if got.PaymentStatus != store.StatusCompleted {
		t.Errorf("expected completed file, got %s", got.PaymentStatus)
	}
	pay, _ := svc.GetPayment(ctx, rec.ID)
	if pay.Status != store.StatusCompleted {
		t.Errorf("expected completed payment, got %s", pay.Status)
	}
	if pay.SettlementRef != "0xfeed" {
		t.Errorf("expected settlement ref 0xfeed, got %q", pay.SettlementRef)
	}
	if got := eventsOfType(st, rec.ID, store.EventPaymentCompleted); len(got) != 1 {
		t.Errorf("expected 1 payment_completed event, got %d", len(got))
	}

	t.Run("repeat promotion does not win or duplicate events", func(t *testing.T) {
		won, err := svc.PromotePayment(ctx, rec.ID, "0xfeed", "")
		if err != nil {
			t.Fatalf("repeat promote failed: %v", err)
		}
		if won {
			t.Error("repeat promotion should not win")
		}
		if got := eventsOfType(st, rec.ID, store.EventPaymentCompleted); len(got) != 1 {
			t.Errorf("expected 1 payment_completed event after repeat, got %d", len(got))
		}
	})
}

func TestService_PromotePayment_NotFound(t *testing.T) {
	svc := NewService(newMockStorage(), newMockStore())

	_, err := svc.PromotePayment(context.Background(), "missing", "0x0", "")
	if err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_Open(t *testing.T) {
	storage := newMockStorage()
	st := newMockStore()
	svc := NewService(storage, st)
	ctx := context.Background()

	content := []byte("downloadable content")
	rec, err := svc.RecordUpload(ctx, bytes.NewReader(content), uploadParams(), "0x1", "")
	if err != nil {
		t.Fatalf("record upload failed: %v", err)
	}

	reader, err := svc.Open(ctx, rec)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer reader.Close()

	got, _ := io.ReadAll(reader)
	if !bytes.Equal(got, content) {
		t.Error("content mismatch")
	}
}

func TestService_CleanupExpired(t *testing.T) {
	storage := newMockStorage()
	st := newMockStore()
	svc := NewService(storage, st)
	ctx := context.Background()

	expired, _ := svc.RecordUpload(ctx, bytes.NewReader([]byte("old")), uploadParams(), "0x1", "")
	st.files[expired.ID].ExpiresAt = time.Now().Add(-time.Hour)

	live, _ := svc.RecordUpload(ctx, bytes.NewReader([]byte("new")), uploadParams(), "0x2", "")

	result, err := svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if result.Deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", result.Deleted)
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected no errors, got %v", result.Errors)
	}

	if _, err := svc.GetByID(ctx, expired.ID); err != store.ErrNotFound {
		t.Error("expired file record should be deleted")
	}
	if _, exists := storage.files[expired.StorageKey]; exists {
		t.Error("expired file blob should be deleted")
	}
	if _, err := svc.GetByID(ctx, live.ID); err != nil {
		t.Error("live file should survive cleanup")
	}
}

func TestService_CleanupExpired_Empty(t *testing.T) {
	st := newMockStore()
	svc := NewService(newMockStorage(), st)

	result, err := svc.CleanupExpired(context.Background())
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if result.Deleted != 0 {
		t.Errorf("expected 0 deleted, got %d", result.Deleted)
	}
	if len(st.transactions) != 0 {
		t.Error("empty run should not append events")
	}
}

func TestService_CleanupExpired_PendingGrace(t *testing.T) {
	storage := newMockStorage()
	st := newMockStore()
	svc := NewService(storage, st)
	ctx := context.Background()

	// Pending file past expiry plus the grace window: reapable.
	orphan, _ := svc.RecordPendingUpload(ctx, bytes.NewReader([]byte("orphan")), uploadParams())
	st.files[orphan.ID].ExpiresAt = time.Now().Add(-PendingGrace - time.Hour)

	// Pending file past expiry but within grace: kept.
	recent, _ := svc.RecordPendingUpload(ctx, bytes.NewReader([]byte("recent")), uploadParams())
	st.files[recent.ID].ExpiresAt = time.Now().Add(-time.Hour)

	result, err := svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if result.Deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", result.Deleted)
	}

	if _, err := svc.GetByID(ctx, orphan.ID); err != store.ErrNotFound {
		t.Error("orphaned pending file should be deleted")
	}
	if _, err := svc.GetByID(ctx, recent.ID); err != nil {
		t.Error("pending file within grace should survive")
	}
}

func TestService_CleanupExpired_MissingBlobTolerated(t *testing.T) {
	storage := newMockStorage()
	st := newMockStore()
	svc := NewService(storage, st)
	ctx := context.Background()

	rec, _ := svc.RecordUpload(ctx, bytes.NewReader([]byte("gone")), uploadParams(), "0x1", "")
	st.files[rec.ID].ExpiresAt = time.Now().Add(-time.Hour)
	delete(storage.files, rec.StorageKey)

	result, err := svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if result.Deleted != 1 {
		t.Errorf("expected record deleted despite missing blob, got %d", result.Deleted)
	}
	if _, err := svc.GetByID(ctx, rec.ID); err != store.ErrNotFound {
		t.Error("record should be deleted even when the blob is already gone")
	}
}

// failDeleteStore fails record deletion for one file id.
type failDeleteStore struct {
	*mockStore
	failID string
}

func (f *failDeleteStore) DeleteFile(ctx context.Context, id string) error {
	if id == f.failID {
		return context.DeadlineExceeded
	}
	return f.mockStore.DeleteFile(ctx, id)
}

func TestService_CleanupExpired_PartialFailure(t *testing.T) {
	storage := newMockStorage()
	inner := newMockStore()
	st := &failDeleteStore{mockStore: inner}
	svc := NewService(storage, st)
	ctx := context.Background()

	bad, _ := svc.RecordUpload(ctx, bytes.NewReader([]byte("bad")), uploadParams(), "0x1", "")
	inner.files[bad.ID].ExpiresAt = time.Now().Add(-time.Hour)
	st.failID = bad.ID

	good, _ := svc.RecordUpload(ctx, bytes.NewReader([]byte("good")), uploadParams(), "0x2", "")
	inner.files[good.ID].ExpiresAt = time.Now().Add(-time.Hour)

	result, err := svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if result.Deleted != 1 {
		t.Errorf("expected 1 deleted despite failure, got %d", result.Deleted)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(result.Errors))
	}
	if result.Errors[0].FileID != bad.ID {
		t.Errorf("expected error for %s, got %s", bad.ID, result.Errors[0].FileID)
	}
	if _, err := svc.GetByID(ctx, good.ID); err != store.ErrNotFound {
		t.Error("failure on one file should not block deletion of others")
	}
}

func TestNewShareLink(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		link, err := NewShareLink()
		if err != nil {
			t.Fatalf("share link generation failed: %v", err)
		}
		if len(link) != 8 {
			t.Errorf("expected 8 character link, got %q", link)
		}
		if seen[link] {
			t.Errorf("duplicate share link %q", link)
		}
		seen[link] = true
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	if IsExpired(now.Add(time.Hour), now) {
		t.Error("future expiry should not be expired")
	}
	if !IsExpired(now.Add(-time.Hour), now) {
		t.Error("past expiry should be expired")
	}
	if !IsExpired(now, now) {
		t.Error("the expiry instant itself counts as expired")
	}
}

func TestService_ListFiles(t *testing.T) {
	svc := NewService(newMockStorage(), newMockStore())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.RecordUpload(ctx, bytes.NewReader([]byte("f")), uploadParams(), "0x1", ""); err != nil {
			t.Fatalf("record upload failed: %v", err)
		}
	}

	got, err := svc.ListFiles(ctx, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 files, got %d", len(got))
	}
}
