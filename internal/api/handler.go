package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/rajat-sharma-Dev/TempFileStorage/internal/files"
	"github.com/rajat-sharma-Dev/TempFileStorage/internal/logging"
	"github.com/rajat-sharma-Dev/TempFileStorage/internal/pricing"
	"github.com/rajat-sharma-Dev/TempFileStorage/internal/store"
	"github.com/rajat-sharma-Dev/TempFileStorage/internal/x402"
)

var validFileIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// MaxUploadSize is the maximum allowed file size (100MB).
const MaxUploadSize = 100 << 20

// Config holds handler options.
type Config struct {
	// Network quoted in payment requirements and challenges.
	Network string

	// When true, uploads are stored unpaid and the downloader pays.
	DeferUploadPayment bool
}

// Handler handles HTTP requests.
type Handler struct {
	files          *files.Service
	gate           *x402.Gate
	cfg            Config
	pendingLimiter *PendingFileLimiter
	mux            *http.ServeMux
}

// NewHandler creates a new HTTP handler.
// If pendingLimiter is nil, no unpaid-upload limit is enforced.
func NewHandler(filesSvc *files.Service, gate *x402.Gate, cfg Config, pendingLimiter *PendingFileLimiter) *Handler {
	h := &Handler{
		files:          filesSvc,
		gate:           gate,
		cfg:            cfg,
		pendingLimiter: pendingLimiter,
		mux:            http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("POST /api/files/upload", h.handleUpload)
	h.mux.HandleFunc("GET /api/files/info/{shareLink}", h.handleFileInfo)
	h.mux.HandleFunc("GET /api/files/all", h.handleListFiles)
	h.mux.HandleFunc("GET /api/files/{id}", h.handleGetFile)
	h.mux.HandleFunc("GET /api/download/{shareLink}", h.handleDownload)
	h.mux.HandleFunc("HEAD /api/download/{shareLink}", h.handleDownload)
	h.mux.HandleFunc("POST /api/payments/initiate", h.handlePaymentInitiate)
	h.mux.HandleFunc("POST /api/payments/complete", h.handlePaymentComplete)
	h.mux.HandleFunc("GET /api/payments/status/{fileId}", h.handlePaymentStatus)
	h.mux.HandleFunc("GET /api/payments/transactions/{fileId}", h.handleTransactions)
	h.mux.HandleFunc("POST /api/admin/cleanup", h.handleCleanup)
	h.mux.HandleFunc("GET /api/health", h.handleHealth)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func isValidFileID(id string) bool {
	return id != "" && len(id) <= 64 && validFileIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.HTTP.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fileInfo is the public view of a file record.
type fileInfo struct {
	FileID        string    `json:"fileId"`
	Filename      string    `json:"filename"`
	Size          int64     `json:"size"`
	MimeType      string    `json:"mimeType,omitempty"`
	Duration      int       `json:"duration"`
	Price         string    `json:"price"`
	ShareLink     string    `json:"shareLink"`
	ExpiryDate    time.Time `json:"expiryDate"`
	PaymentStatus string    `json:"paymentStatus"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toFileInfo(f *store.FileRecord) fileInfo {
	return fileInfo{
		FileID:        f.ID,
		Filename:      f.Filename,
		Size:          f.Size,
		MimeType:      f.MimeType,
		Duration:      f.DurationDays,
		Price:         f.PriceUSD.String(),
		ShareLink:     f.ShareLink,
		ExpiryDate:    f.ExpiresAt,
		PaymentStatus: string(f.PaymentStatus),
		CreatedAt:     f.CreatedAt,
	}
}

// rejection402 is the body returned when an inline payment proof is missing,
// malformed or rejected, and when settlement fails. The accepts set tells the
// client what would satisfy the gate.
type rejection402 struct {
	X402Version int                        `json:"x402Version"`
	Error       string                     `json:"error"`
	Accepts     []x402.PaymentRequirements `json:"accepts"`
	Payer       string                     `json:"payer,omitempty"`
}

func write402(w http.ResponseWriter, reason string, accepts []x402.PaymentRequirements, payer string) {
	writeJSON(w, http.StatusPaymentRequired, rejection402{
		X402Version: x402.Version,
		Error:       reason,
		Accepts:     accepts,
		Payer:       payer,
	})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ip := extractIP(r)

	if h.cfg.DeferUploadPayment && h.pendingLimiter != nil && !h.pendingLimiter.CanUpload(ip) {
		count := h.pendingLimiter.PendingCount(ip)
		max := h.pendingLimiter.MaxPending()
		writeError(w, http.StatusTooManyRequests, fmt.Sprintf(
			"unpaid file limit reached: you have %d unpaid file(s) (max %d)", count, max))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	if header.Size <= 0 {
		writeError(w, http.StatusBadRequest, "File is empty")
		return
	}
	if header.Size > MaxUploadSize {
		writeError(w, http.StatusBadRequest, "File too large (max 100MB)")
		return
	}

	durationDays, err := strconv.Atoi(r.FormValue("duration"))
	if err != nil || !pricing.IsValidDuration(durationDays) {
		writeError(w, http.StatusBadRequest, "Invalid duration. Must be 1, 7, or 30 days")
		return
	}

	price, err := pricing.PriceFor(durationDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid duration. Must be 1, 7, or 30 days")
		return
	}

	params := files.UploadParams{
		Filename:     header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Size:         header.Size,
		DurationDays: durationDays,
		Price:        price,
	}

	// Deferred mode stores the file unpaid; the downloader pays instead.
	if h.cfg.DeferUploadPayment {
		rec, err := h.files.RecordPendingUpload(r.Context(), file, params)
		if err != nil {
			logging.Internal.Printf("pending upload failed: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to upload file")
			return
		}
		if h.pendingLimiter != nil && ip != "" {
			h.pendingLimiter.TrackPendingFile(ip, rec.ID)
		}
		logging.Internal.Printf("pending upload: file_id=%s, size=%d, link=%s", rec.ID, rec.Size, rec.ShareLink)
		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"message": "File uploaded, payment pending",
			"data":    toFileInfo(rec),
		})
		return
	}

	// Gated mode: verify -> settle -> persist, in that order. Nothing is
	// stored unless settlement succeeds.
	resource := requestURL(r)
	description := fmt.Sprintf("Upload file for %d day(s) - %s", durationDays, header.Filename)
	requirement, err := h.gate.NewRequirement(price.String(), h.cfg.Network, resource, description)
	if err != nil {
		logging.Internal.Printf("failed to build payment requirement: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to upload file")
		return
	}
	accepts := []x402.PaymentRequirements{requirement}

	paymentHeader := r.Header.Get(x402.PaymentHeader)
	if paymentHeader == "" {
		write402(w, "X-PAYMENT header is required", accepts, "")
		return
	}

	selected, err := h.gate.Verify(r.Context(), paymentHeader, accepts)
	if err != nil {
		var rej *x402.RejectionError
		if errors.As(err, &rej) {
			write402(w, rej.Reason, accepts, rej.Payer)
		} else {
			write402(w, err.Error(), accepts, "")
		}
		logging.X402.Printf("upload payment rejected: %v", err)
		return
	}

	settled, err := h.gate.Settle(r.Context(), paymentHeader, selected)
	if err != nil {
		// Distinct from rejection: the proof was fine, finalization failed.
		write402(w, err.Error(), accepts, "")
		logging.X402.Printf("upload settlement failed: %v", err)
		return
	}

	settlementData, _ := json.Marshal(settled)
	rec, err := h.files.RecordUpload(r.Context(), file, params, settled.Transaction, string(settlementData))
	if err != nil {
		logging.Internal.Printf("failed to persist upload: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to upload file")
		return
	}

	logging.Internal.Printf("upload complete: file_id=%s, size=%d, price=%s, link=%s",
		rec.ID, rec.Size, rec.PriceUSD, rec.ShareLink)

	w.Header().Set(x402.SettlementHeader, x402.SettleResponseHeader(settled))
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"message": "File uploaded successfully",
		"data":    toFileInfo(rec),
	})
}

// requestURL reconstructs the resource URL for the payment requirement.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.Path
}

func (h *Handler) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	link := r.PathValue("shareLink")

	f, err := h.files.GetByShareLink(r.Context(), link)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		logging.Internal.Printf("file info lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch file info")
		return
	}

	if files.IsExpired(f.ExpiresAt, time.Now()) {
		writeError(w, http.StatusGone, "File has expired")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    toFileInfo(f),
	})
}

func (h *Handler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.files.ListFiles(r.Context(), limit)
	if err != nil {
		logging.Internal.Printf("file list failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch files")
		return
	}

	infos := make([]fileInfo, 0, len(list))
	for _, f := range list {
		infos = append(infos, toFileInfo(f))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(infos),
		"data":    infos,
	})
}

func (h *Handler) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !isValidFileID(id) {
		writeError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	f, err := h.files.GetByID(r.Context(), id)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		logging.Internal.Printf("file lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch file")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    toFileInfo(f),
	})
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	link := r.PathValue("shareLink")

	f, err := h.files.GetByShareLink(r.Context(), link)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		logging.Internal.Printf("download lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to download file")
		return
	}

	// Expired files are inaccessible even before the reaper runs.
	if files.IsExpired(f.ExpiresAt, time.Now()) {
		writeError(w, http.StatusGone, "File has expired and is no longer available")
		return
	}

	// A proof whose attested file id matches promotes the payment, then
	// streams. The proof is not re-verified on-chain.
	if proofHeader := r.Header.Get(x402.ProofHeader); proofHeader != "" {
		proof, err := x402.ParseProof(proofHeader)
		if err != nil {
			logging.X402.Printf("rejecting malformed payment proof: %v", err)
		} else if proof.FileID == f.ID {
			if f.PaymentStatus != store.StatusCompleted {
				won, err := h.files.PromotePayment(r.Context(), f.ID, proof.TransactionHash, proof.Raw())
				if err != nil {
					logging.Internal.Printf("payment promotion failed for %s: %v", f.ID, err)
					writeError(w, http.StatusInternalServerError, "Failed to download file")
					return
				}
				if won && h.pendingLimiter != nil {
					h.pendingLimiter.OnPaymentReceived(f.ID)
				}
			}
			h.streamFile(w, r, f)
			return
		}
	}

	// Repeat access for an already-paid file needs no second proof.
	if f.PaymentStatus == store.StatusCompleted {
		h.streamFile(w, r, f)
		return
	}

	challenge, err := h.gate.NewChallenge(h.cfg.Network, f.PriceUSD.String(),
		"Download "+f.Filename, x402.ChallengeMetadata{
			FileID:    f.ID,
			ShareLink: f.ShareLink,
			Filename:  f.Filename,
			Size:      f.Size,
			Duration:  f.DurationDays,
		})
	if err != nil {
		logging.Internal.Printf("failed to build challenge: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to download file")
		return
	}
	if err := x402.WriteChallenge(w, challenge); err != nil {
		logging.HTTP.Printf("failed to write challenge: %v", err)
	}
}

func (h *Handler) streamFile(w http.ResponseWriter, r *http.Request, f *store.FileRecord) {
	reader, err := h.files.Open(r.Context(), f)
	if err == files.ErrNotFound {
		writeError(w, http.StatusNotFound, "File not found on server")
		return
	}
	if err != nil {
		logging.Internal.Printf("failed to open blob for %s: %v", f.ID, err)
		writeError(w, http.StatusInternalServerError, "Error downloading file")
		return
	}
	defer reader.Close()

	contentType := f.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Filename))
	w.Header().Set("Content-Type", contentType)

	// ServeContent handles Range requests, Content-Length, and HEAD.
	http.ServeContent(w, r, "", f.CreatedAt, reader)
}

// PaymentInitiateRequest asks for payment details on a pending file.
type PaymentInitiateRequest struct {
	FileID string `json:"fileId"`
}

func (h *Handler) handlePaymentInitiate(w http.ResponseWriter, r *http.Request) {
	var req PaymentInitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !isValidFileID(req.FileID) {
		writeError(w, http.StatusBadRequest, "File ID is required")
		return
	}

	f, err := h.files.GetByID(r.Context(), req.FileID)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		logging.Internal.Printf("payment initiate lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to initiate payment")
		return
	}

	if f.PaymentStatus == store.StatusCompleted {
		writeError(w, http.StatusBadRequest, "Payment already completed")
		return
	}
	if files.IsExpired(f.ExpiresAt, time.Now()) {
		writeError(w, http.StatusGone, "File has expired")
		return
	}

	payment, err := h.files.GetPayment(r.Context(), f.ID)
	if err != nil {
		logging.Internal.Printf("payment lookup failed for %s: %v", f.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to initiate payment")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Payment initiated",
		"data": map[string]any{
			"fileId":        f.ID,
			"filename":      f.Filename,
			"price":         f.PriceUSD.String(),
			"duration":      f.DurationDays,
			"shareLink":     f.ShareLink,
			"paymentId":     payment.ID,
			"paymentStatus": string(payment.Status),
		},
	})
}

// PaymentCompleteRequest promotes a pending payment with a settlement proof.
type PaymentCompleteRequest struct {
	FileID          string          `json:"fileId"`
	TransactionHash string          `json:"transactionHash"`
	PaymentData     json.RawMessage `json:"paymentData,omitempty"`
}

func (h *Handler) handlePaymentComplete(w http.ResponseWriter, r *http.Request) {
	var req PaymentCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !isValidFileID(req.FileID) {
		writeError(w, http.StatusBadRequest, "File ID is required")
		return
	}
	if req.TransactionHash == "" {
		writeError(w, http.StatusBadRequest, "Transaction hash is required")
		return
	}

	f, err := h.files.GetByID(r.Context(), req.FileID)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		logging.Internal.Printf("payment complete lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to complete payment")
		return
	}

	if f.PaymentStatus == store.StatusCompleted {
		writeError(w, http.StatusBadRequest, "Payment already completed")
		return
	}

	won, err := h.files.PromotePayment(r.Context(), f.ID, req.TransactionHash, string(req.PaymentData))
	if err != nil {
		logging.Internal.Printf("payment promotion failed for %s: %v", f.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to complete payment")
		return
	}
	if won && h.pendingLimiter != nil {
		h.pendingLimiter.OnPaymentReceived(f.ID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Payment completed successfully",
		"data": map[string]any{
			"fileId":        f.ID,
			"shareLink":     f.ShareLink,
			"paymentStatus": string(store.StatusCompleted),
		},
	})
}

func (h *Handler) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("fileId")
	if !isValidFileID(id) {
		writeError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	f, err := h.files.GetByID(r.Context(), id)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		logging.Internal.Printf("payment status lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch payment status")
		return
	}

	payment, err := h.files.GetPayment(r.Context(), id)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "Payment not found")
		return
	}
	if err != nil {
		logging.Internal.Printf("payment lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch payment status")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"fileId":          f.ID,
			"paymentStatus":   string(f.PaymentStatus),
			"amount":          payment.AmountUSD.String(),
			"transactionHash": payment.SettlementRef,
			"paidAt":          payment.PaidAt,
		},
	})
}

// transactionInfo is the public view of one audit event.
type transactionInfo struct {
	ID        string          `json:"id"`
	FileID    string          `json:"fileId"`
	PaymentID string          `json:"paymentId,omitempty"`
	EventType string          `json:"eventType"`
	EventData json.RawMessage `json:"eventData,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("fileId")
	if !isValidFileID(id) {
		writeError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	if _, err := h.files.GetByID(r.Context(), id); err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "File not found")
		return
	} else if err != nil {
		logging.Internal.Printf("transactions lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}

	events, err := h.files.ListTransactions(r.Context(), id)
	if err != nil {
		logging.Internal.Printf("transactions list failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch transactions")
		return
	}

	infos := make([]transactionInfo, 0, len(events))
	for _, ev := range events {
		infos = append(infos, transactionInfo{
			ID:        ev.ID,
			FileID:    ev.FileID,
			PaymentID: ev.PaymentID,
			EventType: ev.EventType,
			EventData: json.RawMessage(ev.EventData),
			CreatedAt: ev.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(infos),
		"data":    infos,
	})
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	result, err := h.files.CleanupExpired(r.Context())
	if err != nil {
		logging.Internal.Printf("on-demand cleanup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Cleanup failed")
		return
	}

	logging.Reaper.Printf("on-demand cleanup: %d deleted, %d errors", result.Deleted, len(result.Errors))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"deletedCount": result.Deleted,
		"errors":       result.Errors,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}
