package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	maxReplayBody        = 1 << 20 // 1 MB
)

// storedResponse is the replayable part of a completed request. Only the
// content type is kept: rate-limit and correlation headers belong to the
// request that produced them, not to replays.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency deduplicates mutating requests that carry an Idempotency-Key
// header. The first response is stored in a JetStream KV bucket, whose TTL
// bounds the replay window, and every retry with the same method, path and
// key gets that response back without reaching the handler. Responses over
// 1 MB and 5xx failures are not stored, so a retry after a server fault
// runs the request again.
func Idempotency(kv jetstream.KeyValue) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			clientKey := r.Header.Get(headerIdempotencyKey)
			if clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := replayKey(r.Method, r.URL.Path, clientKey)

			if entry, err := kv.Get(r.Context(), key); err == nil {
				var stored storedResponse
				if err := json.Unmarshal(entry.Value(), &stored); err == nil {
					if stored.ContentType != "" {
						w.Header().Set("Content-Type", stored.ContentType)
					}
					w.WriteHeader(stored.Status)
					_, _ = w.Write(stored.Body)
					return
				}
				slog.Warn("idempotency: corrupt entry", "key", key)
			}

			rec := &replayRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusInternalServerError || rec.buf.Len() > maxReplayBody {
				return
			}
			data, err := json.Marshal(storedResponse{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.buf.Bytes(),
			})
			if err != nil {
				return
			}
			if _, err := kv.Put(r.Context(), key, data); err != nil {
				slog.Warn("idempotency: store response", "key", key, "error", err)
			}
		})
	}
}

// replayKey scopes the client's key to the route, so one key sent to two
// endpoints cannot replay the wrong response. Hashing also keeps the result
// inside the KV store's allowed key characters.
func replayKey(method, path, clientKey string) string {
	sum := sha256.Sum256([]byte(method + "\n" + path + "\n" + clientKey))
	return hex.EncodeToString(sum[:])
}

// replayRecorder tees the response into a buffer while it streams to the
// client.
type replayRecorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (r *replayRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *replayRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}
