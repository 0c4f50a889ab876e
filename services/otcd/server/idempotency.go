package server

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/text/unicode/norm"

	"otcswap/gateway/middleware"
)

const (
	headerIdempotency     = "Idempotency-Key"
	headerIdemCache       = "X-Idempotency-Cache"
	defaultIdempotencyTTL = 24 * time.Hour
	maxIdempotencyKey     = 128
)

var bucketIdempotency = []byte("idempotency")

// IdempotencyRecord is a cached response envelope.
type IdempotencyRecord struct {
	StatusCode int       `json:"statusCode"`
	Body       []byte    `json:"body"`
	StoredAt   time.Time `json:"storedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// IdempotencyStore persists successful responses to signed requests so a
// client retrying with the same Idempotency-Key observes the original
// outcome instead of settling twice.
type IdempotencyStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// OpenIdempotencyStore opens (creating if needed) the Bolt file at path.
func OpenIdempotencyStore(path string, ttl time.Duration) (*IdempotencyStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketIdempotency)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &IdempotencyStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Close releases the underlying Bolt handle.
func (s *IdempotencyStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Reserve returns the cached response for key when one exists. Otherwise it
// claims key with an in-flight record (StatusCode 0) in the same transaction
// so concurrent retries cannot both run the handler. Expired entries are
// replaced.
func (s *IdempotencyStore) Reserve(key string) (IdempotencyRecord, bool, error) {
	var record IdempotencyRecord
	found := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketIdempotency)
		if raw := bucket.Get([]byte(key)); raw != nil {
			if err := json.Unmarshal(raw, &record); err != nil {
				return err
			}
			if !s.now().After(record.ExpiresAt) {
				found = true
				return nil
			}
		}
		now := s.now()
		record = IdempotencyRecord{StoredAt: now, ExpiresAt: now.Add(s.ttl)}
		payload, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), payload)
	})
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return record, found, nil
}

// Release drops the reservation or cached response for key.
func (s *IdempotencyStore) Release(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIdempotency).Delete([]byte(key))
	})
}

// InFlight reports whether the record is a reservation with no response yet.
func (r IdempotencyRecord) InFlight() bool {
	return r.StatusCode == 0
}

// Put stores the response for key.
func (s *IdempotencyStore) Put(key string, status int, body []byte) error {
	now := s.now()
	payload, err := json.Marshal(IdempotencyRecord{
		StatusCode: status,
		Body:       body,
		StoredAt:   now,
		ExpiresAt:  now.Add(s.ttl),
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIdempotency).Put([]byte(key), payload)
	})
}

// idempotencyKey scopes the client key to the caller and route so two
// callers can never observe each other's responses. The client key is NFKC
// normalised so equivalent Unicode spellings share one entry.
func idempotencyKey(caller [20]byte, method, path, key string) string {
	return hex.EncodeToString(caller[:]) + "|" + method + "|" + path + "|" + norm.NFKC.String(key)
}

// idempotent replays cached 2xx responses for requests carrying an
// Idempotency-Key. It must run after authentication.
func (s *Server) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(headerIdempotency))
		if s.idem == nil || raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(raw) > maxIdempotencyKey {
			writeError(w, http.StatusBadRequest, "InvalidIdempotencyKey", "idempotency key too long")
			return
		}
		caller, ok := middleware.CallerFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		key := idempotencyKey(caller.Address, r.Method, r.URL.Path, raw)
		record, found, err := s.idem.Reserve(key)
		if err != nil {
			s.logger.Warn("idempotency lookup failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if found {
			if record.InFlight() {
				writeError(w, http.StatusConflict, "IdempotencyInFlight", "a request with this idempotency key is still in progress")
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(headerIdemCache, "hit")
			w.WriteHeader(record.StatusCode)
			_, _ = w.Write(record.Body)
			return
		}

		stored := false
		defer func() {
			if stored {
				return
			}
			if err := s.idem.Release(key); err != nil {
				s.logger.Warn("idempotency release failed", "error", err)
			}
		}()

		var buf bytes.Buffer
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&buf)
		ww.Header().Set(headerIdemCache, "miss")
		next.ServeHTTP(ww, r)

		if status := ww.Status(); status >= 200 && status < 300 {
			if err := s.idem.Put(key, status, buf.Bytes()); err != nil {
				s.logger.Warn("idempotency store failed", "error", err)
				return
			}
			stored = true
		}
	})
}
