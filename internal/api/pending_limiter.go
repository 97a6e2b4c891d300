package api

import (
	"sync"
	"time"
)

// PendingFileLimiter caps the number of concurrent unpaid files per IP in
// deferred-payment mode, where anyone could otherwise fill storage without
// ever paying. Entries are cleared when a file's payment completes and stale
// ones are swept alongside the expiry reaper.
type PendingFileLimiter struct {
	mu          sync.RWMutex
	maxPending  int
	pendingByIP map[string]map[string]time.Time // IP -> fileID -> tracked time
	fileToIP    map[string]string               // fileID -> IP (reverse lookup)
}

// NewPendingFileLimiter creates a limiter allowing maxPending unpaid files
// per IP.
func NewPendingFileLimiter(maxPending int) *PendingFileLimiter {
	return &PendingFileLimiter{
		maxPending:  maxPending,
		pendingByIP: make(map[string]map[string]time.Time),
		fileToIP:    make(map[string]string),
	}
}

// CanUpload reports whether the IP is under the unpaid-file limit.
func (l *PendingFileLimiter) CanUpload(ip string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.pendingByIP[ip]) < l.maxPending
}

// PendingCount returns the number of unpaid files tracked for an IP.
func (l *PendingFileLimiter) PendingCount(ip string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.pendingByIP[ip])
}

// MaxPending returns the configured limit.
func (l *PendingFileLimiter) MaxPending() int {
	return l.maxPending
}

// TrackPendingFile records a new unpaid file for an IP.
func (l *PendingFileLimiter) TrackPendingFile(ip, fileID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pendingByIP[ip] == nil {
		l.pendingByIP[ip] = make(map[string]time.Time)
	}
	l.pendingByIP[ip][fileID] = time.Now()
	l.fileToIP[fileID] = ip
}

// OnPaymentReceived stops tracking a file once its payment completes.
func (l *PendingFileLimiter) OnPaymentReceived(fileID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ip, ok := l.fileToIP[fileID]
	if !ok {
		return // not tracked (maybe already swept)
	}

	delete(l.fileToIP, fileID)
	if files := l.pendingByIP[ip]; files != nil {
		delete(files, fileID)
		if len(files) == 0 {
			delete(l.pendingByIP, ip)
		}
	}
}

// CleanupExpired removes entries older than maxAge. Meant to run on the same
// tick as the file reaper so an IP is not penalized for files that no longer
// exist. Returns the number of entries removed.
func (l *PendingFileLimiter) CleanupExpired(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for ip, files := range l.pendingByIP {
		for fileID, trackedAt := range files {
			if trackedAt.Before(cutoff) {
				delete(files, fileID)
				delete(l.fileToIP, fileID)
				removed++
			}
		}
		if len(files) == 0 {
			delete(l.pendingByIP, ip)
		}
	}

	return removed
}
