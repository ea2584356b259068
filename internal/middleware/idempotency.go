package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	apperrors "github.com/aditya/go-waypool/internal/errors"
	"github.com/aditya/go-waypool/pkg/utils"
	"github.com/redis/go-redis/v9"
)

const (
	IdempotencyHeader = "Idempotency-Key"

	idempotencyPrefix  = "idempotency:"
	idempotencyTTL     = 24 * time.Hour
	idempotencyLockTTL = 30 * time.Second
)

// IdempotencyMiddleware replays the stored response for a repeated key. A
// passenger retrying a booking POST after a timeout gets the original
// booking back instead of racing a second reservation.
type IdempotencyMiddleware struct {
	redis *redis.Client
}

func NewIdempotencyMiddleware(redisClient *redis.Client) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{redis: redisClient}
}

type storedReply struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

// replyRecorder buffers the response so it can be stored after the handler runs.
type replyRecorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (rr *replyRecorder) WriteHeader(code int) {
	rr.status = code
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *replyRecorder) Write(b []byte) (int, error) {
	rr.buf.Write(b)
	return rr.ResponseWriter.Write(b)
}

func (m *IdempotencyMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyHeader)
		if key == "" || !mutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			utils.BadRequest(w, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		ctx := r.Context()
		cacheKey := idempotencyPrefix + key
		reqHash := requestHash(body)

		if reply := m.lookup(ctx, cacheKey); reply != nil {
			if reply.RequestHash != reqHash {
				utils.Error(w, apperrors.NewAPIError("idempotency_conflict",
					"idempotency key already used with a different request", http.StatusConflict))
				return
			}
			if reply.ContentType != "" {
				w.Header().Set("Content-Type", reply.ContentType)
			}
			w.WriteHeader(reply.Status)
			w.Write(reply.Body)
			return
		}

		// First sight of this key: take the lock so concurrent retries wait
		// out the in-flight request rather than both executing.
		lockKey := cacheKey + ":lock"
		locked, err := m.redis.SetNX(ctx, lockKey, "1", idempotencyLockTTL).Result()
		if err != nil || !locked {
			utils.Error(w, apperrors.NewAPIError("request_in_progress",
				"a request with this idempotency key is already being processed", http.StatusConflict))
			return
		}
		defer m.redis.Del(ctx, lockKey)

		rec := &replyRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Only 2xx outcomes are worth replaying; a failed booking attempt
		// should be retryable with the same key.
		if rec.status >= 200 && rec.status < 300 {
			m.store(ctx, cacheKey, &storedReply{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.buf.Bytes(),
				RequestHash: reqHash,
			})
		}
	})
}

func (m *IdempotencyMiddleware) lookup(ctx context.Context, key string) *storedReply {
	data, err := m.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var reply storedReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil
	}
	return &reply
}

func (m *IdempotencyMiddleware) store(ctx context.Context, key string, reply *storedReply) {
	data, err := json.Marshal(reply)
	if err != nil {
		return
	}
	m.redis.Set(ctx, key, data, idempotencyTTL)
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func requestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
