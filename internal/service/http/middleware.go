package http

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

type ctxKey int

const userCtxKey ctxKey = iota

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyTTL       = 24 * time.Hour
)

// userFromContext достаёт аутентифицированного пользователя из контекста запроса.
func userFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userCtxKey).(domain.User)
	return user, ok
}

// Middleware собирает общие прослойки HTTP API.
type Middleware struct {
	auth    domain.Authenticator
	limiter domain.RateLimiter
	idem    domain.IdempotencyRepository
	logger  *log.Entry
	metrics *metrics.CheckoutMetrics
}

// NewMiddleware создаёт набор прослоек.
func NewMiddleware(auth domain.Authenticator, limiter domain.RateLimiter, idem domain.IdempotencyRepository, logger *log.Entry, m *metrics.CheckoutMetrics) *Middleware {
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}
	return &Middleware{auth: auth, limiter: limiter, idem: idem, logger: logger, metrics: m}
}

// RequireUser разрешает bearer-токен в пользователя и кладёт его в контекст.
func (m *Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
			return
		}

		user, err := m.auth.Authenticate(r.Context(), token)
		if err != nil {
			respondDomainError(w, m.logger, err)
			return
		}

		ctx := context.WithValue(r.Context(), userCtxKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole пропускает только пользователей с требуемой ролью.
// Единственная точка авторизации: хендлеры ролей не проверяют.
func (m *Middleware) RequireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := userFromContext(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}
			if user.Role != role {
				respondDomainError(w, m.logger, domain.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit ограничивает частоту обращений: ключ — пользователь, для
// неаутентифицированных запросов — адрес клиента.
func (m *Middleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := clientKey(r)
		allowed, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			// Лимитер не должен ронять магазин.
			m.logger.WithError(err).Warn("rate limiter error, failing open")
			allowed = true
		}
		if !allowed {
			if m.metrics != nil {
				m.metrics.RecordRateLimited()
			}
			respondError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Idempotency реализует контракт заголовка Idempotency-Key: первый запрос
// выполняется и его ответ кэшируется, повтор с тем же ключом и телом получает
// сохранённый ответ, повтор с другим телом — конфликт.
func (m *Middleware) Idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.idem == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		record, err := m.idem.CreateProcessing(key, requestHash(r.Method, r.URL.Path, body), time.Now().UTC().Add(idempotencyTTL))
		if err != nil {
			m.replay(w, err, record)
			return
		}

		recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		switch {
		case recorder.status >= http.StatusInternalServerError:
			// 5xx — транзиентный сбой (провайдер, хранилище): запись снимается,
			// чтобы повтор с тем же ключом выполнил запрос заново, а не получал
			// вечный idempotency_processing.
			if err := m.idem.Delete(key); err != nil {
				m.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to release idempotency key")
			}
		case recorder.status >= http.StatusBadRequest:
			if err := m.idem.MarkFailed(key, recorder.body.Bytes(), recorder.status); err != nil {
				m.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
			}
		default:
			if err := m.idem.MarkDone(key, recorder.body.Bytes(), recorder.status); err != nil {
				m.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
			}
		}
	})
}

func (m *Middleware) replay(w http.ResponseWriter, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		respondDomainError(w, m.logger, createErr)
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusProcessing:
			respondError(w, http.StatusConflict, "idempotency_processing", "request with the same idempotency key is already processing")
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(record.HTTPStatus)
			_, _ = w.Write(record.ResponseBody)
		default:
			respondError(w, http.StatusInternalServerError, "internal", "unknown idempotency record status")
		}
	default:
		m.logger.WithError(createErr).Warn("failed to create idempotency record")
		respondError(w, http.StatusInternalServerError, "internal", "failed to initialize idempotency request")
	}
}

// responseRecorder дублирует ответ в буфер для idempotency-кэша.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	r.body.Write(data)
	return r.ResponseWriter.Write(data)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

func clientKey(r *http.Request) string {
	if user, ok := userFromContext(r.Context()); ok {
		return "user:" + user.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func requestHash(method, path string, body []byte) string {
	payload := make([]byte, 0, len(method)+len(path)+len(body)+2)
	payload = append(payload, method...)
	payload = append(payload, '|')
	payload = append(payload, path...)
	payload = append(payload, '|')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
