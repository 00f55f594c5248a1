package server

import (
	"crypto/sha256"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Token hashing parameters.
const (
	// DefaultTokenCost is the bcrypt cost used by HashToken.
	DefaultTokenCost = 12

	// MinTokenCost is the lowest cost accepted for a configured hash.
	MinTokenCost = 10
)

// Failed-attempt limits per client IP.
const (
	DefaultMaxAttempts   = 5
	DefaultAttemptWindow = 15 * time.Minute
	DefaultBlockDuration = 30 * time.Minute
)

var (
	// ErrEmptyToken is returned when hashing an empty token.
	ErrEmptyToken = errors.New("server: access token cannot be empty")
	// ErrTokenMismatch is returned when a token does not match the hash.
	ErrTokenMismatch = errors.New("server: access token does not match")
	// ErrTokenCostTooLow is returned for hashes below MinTokenCost.
	ErrTokenCostTooLow = errors.New("server: access token hash cost is below minimum")
)

// HashToken creates the bcrypt hash stored in PREVIEW_ACCESS_TOKEN_HASH.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", ErrEmptyToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), DefaultTokenCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyToken compares token with a bcrypt hash in constant time.
func VerifyToken(hash, token string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		return ErrTokenMismatch
	}
	return nil
}

// ValidateTokenHash checks that hash is a bcrypt hash of acceptable cost.
func ValidateTokenHash(hash string) error {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return err
	}
	if cost < MinTokenCost {
		return ErrTokenCostTooLow
	}
	return nil
}

type attemptRecord struct {
	count   int
	resetAt time.Time
}

// attemptLimiter blocks an IP after maxAttempts failed tokens within window
// for blockFor. A successful request clears the record.
type attemptLimiter struct {
	mu          sync.Mutex
	attempts    map[string]attemptRecord
	maxAttempts int
	window      time.Duration
	blockFor    time.Duration
	now         func() time.Time
}

func newAttemptLimiter(maxAttempts int, window, blockFor time.Duration) *attemptLimiter {
	return &attemptLimiter{
		attempts:    make(map[string]attemptRecord),
		maxAttempts: maxAttempts,
		window:      window,
		blockFor:    blockFor,
		now:         time.Now,
	}
}

// Allow reports whether ip may try a token and, if not, how long it must
// wait.
func (l *attemptLimiter) Allow(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.attempts[ip]
	now := l.now()
	if !ok || now.After(rec.resetAt) {
		return true, 0
	}
	if rec.count >= l.maxAttempts {
		return false, rec.resetAt.Sub(now)
	}
	return true, 0
}

// RecordFailure counts one failed attempt. Reaching maxAttempts extends the
// record to the block duration.
func (l *attemptLimiter) RecordFailure(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	rec, ok := l.attempts[ip]
	if !ok || now.After(rec.resetAt) {
		rec = attemptRecord{resetAt: now.Add(l.window)}
	}
	rec.count++
	if rec.count == l.maxAttempts {
		rec.resetAt = now.Add(l.blockFor)
	}
	l.attempts[ip] = rec
}

// Reset forgets ip.
func (l *attemptLimiter) Reset(ip string) {
	l.mu.Lock()
	delete(l.attempts, ip)
	l.mu.Unlock()
}

// Cleanup drops expired records and returns how many were removed.
func (l *attemptLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for ip, rec := range l.attempts {
		if now.After(rec.resetAt) {
			delete(l.attempts, ip)
			removed++
		}
	}
	return removed
}

// tokenAuth guards every route except /health with a bearer token checked
// against a bcrypt hash. Browsers cannot set headers on websocket requests,
// so the access_token query parameter is accepted too.
// Requests repeating the last accepted token skip bcrypt.
type tokenAuth struct {
	hash    string
	limiter *attemptLimiter
	logger  *zap.Logger

	mu       sync.RWMutex
	accepted [sha256.Size]byte
	hasValid bool
}

func newTokenAuth(hash string, logger *zap.Logger) *tokenAuth {
	return &tokenAuth{
		hash:    hash,
		limiter: newAttemptLimiter(DefaultMaxAttempts, DefaultAttemptWindow, DefaultBlockDuration),
		logger:  logger,
	}
}

func (a *tokenAuth) check(token string) bool {
	digest := sha256.Sum256([]byte(token))
	a.mu.RLock()
	cached := a.hasValid && a.accepted == digest
	a.mu.RUnlock()
	if cached {
		return true
	}
	if VerifyToken(a.hash, token) != nil {
		return false
	}
	a.mu.Lock()
	a.accepted, a.hasValid = digest, true
	a.mu.Unlock()
	return true
}

func (a *tokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if ok, wait := a.limiter.Allow(ip); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			writeError(w, http.StatusTooManyRequests, "too_many_attempts", "too many failed attempts")
			return
		}

		token := bearerToken(r)
		if token == "" || !a.check(token) {
			a.limiter.RecordFailure(ip)
			a.logger.Warn("Rejected request with invalid access token",
				zap.String("remote_addr", ip),
				zap.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", `Bearer realm="previewd"`)
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid access token")
			return
		}
		a.limiter.Reset(ip)
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}
