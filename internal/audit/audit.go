// Package audit records admin CRUD actions in the _audit table. Entries
// are buffered in memory and written in batches so the request path never
// waits on the audit insert.
package audit

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"geoform-backend/internal/store"
)

// Entry is one recorded action.
type Entry struct {
	Action   string // create, update, delete, duplicate
	App      string
	Entity   string
	RecordID string
	UserID   string
	At       time.Time
}

// Recorder collects entries and periodically flushes them in a batch
// insert.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	store   *store.Store
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
}

// NewRecorder starts a recorder that flushes on a timer or when full.
func NewRecorder(s *store.Store, maxSize int, flushInterval time.Duration) *Recorder {
	r := &Recorder{
		store:   s,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	r.ticker = time.NewTicker(flushInterval)
	go r.run()
	return r
}

func (r *Recorder) run() {
	for {
		select {
		case <-r.done:
			return
		case <-r.ticker.C:
			r.Flush()
		}
	}
}

// Record adds an entry to the buffer. A full buffer triggers an
// asynchronous flush.
func (r *Recorder) Record(e Entry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	r.mu.Lock()
	r.entries = append(r.entries, e)
	shouldFlush := len(r.entries) >= r.maxSize
	r.mu.Unlock()
	if shouldFlush {
		go r.Flush()
	}
}

// Flush writes all buffered entries with a single batch insert. Failures
// are logged and the batch is dropped; auditing never fails a request.
func (r *Recorder) Flush() {
	r.mu.Lock()
	if len(r.entries) == 0 {
		r.mu.Unlock()
		return
	}
	batch := r.entries
	r.entries = nil
	r.mu.Unlock()

	ctx := context.Background()
	pb := r.store.Dialect.NewParamBuilder()
	rows := make([]string, 0, len(batch))
	for _, e := range batch {
		rows = append(rows, fmt.Sprintf("(%s, %s, %s, %s, %s, %s, %s)",
			pb.Add(uuid.NewString()), pb.Add(e.Action), pb.Add(e.App),
			pb.Add(e.Entity), pb.Add(e.RecordID), pb.Add(e.UserID),
			pb.Add(e.At.UTC().Format(time.RFC3339Nano))))
	}
	sqlStr := fmt.Sprintf(
		"INSERT INTO _audit (id, action, app, entity, record_id, user_id, at) VALUES %s",
		strings.Join(rows, ", "))
	if _, err := store.Exec(ctx, r.store.DB, sqlStr, pb.Params()...); err != nil {
		log.Printf("ERROR: audit flush: %v", err)
	}
}

// Stop halts the background ticker and flushes remaining entries.
func (r *Recorder) Stop() {
	if r.ticker != nil {
		r.ticker.Stop()
	}
	close(r.done)
	r.Flush()
}
