// Package audit records one entry per gateway operation, successful or not.
// Records land in a bounded in-memory ring for inspection and, best effort,
// in a rotating JSON-lines file. Audit failures never fail the operation
// they describe.
package audit

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	"github.com/adaptive-sql/querygate/internal/models"
	"github.com/adaptive-sql/querygate/internal/utils"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

const fileQueueSize = 256

// Logger is the audit trail. Safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	ring    []models.AuditRecord
	next    int
	count   int
	dropped uint64
	closed  bool

	sanitize     bool
	includeActor bool

	fileQueue chan models.AuditRecord
	done      chan struct{}
	sink      *lumberjack.Logger

	metrics *Metrics
}

// NewLogger builds the audit trail from config. When cfg.Directory is empty
// the file sink is disabled and only the in-memory ring is kept.
func NewLogger(cfg models.AuditConfig) *Logger {
	size := cfg.BufferSize
	if size <= 0 {
		size = models.DefaultAuditBufferSize
	}
	l := &Logger{
		ring:         make([]models.AuditRecord, size),
		sanitize:     cfg.SanitizeEnabled(),
		includeActor: cfg.IncludeUserContext,
		metrics:      NewMetrics(),
	}

	if cfg.Directory != "" {
		l.sink = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Directory, "audit.log"),
			MaxSize:    cfg.MaxFileSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		l.fileQueue = make(chan models.AuditRecord, fileQueueSize)
		l.done = make(chan struct{})
		go l.writeLoop()
	}

	return l
}

// Record stores one audit entry. SQL is sanitized before it reaches either
// sink; the raw statement never leaves the gateway process.
func (l *Logger) Record(rec models.AuditRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if !l.includeActor {
		rec.Actor = ""
	}
	rec.SQL = SanitizeSQL(rec.SQL, l.sanitize)

	l.mu.Lock()
	l.ring[l.next] = rec
	l.next = (l.next + 1) % len(l.ring)
	if l.count < len(l.ring) {
		l.count++
	}
	if l.fileQueue != nil && !l.closed {
		select {
		case l.fileQueue <- rec:
		default:
			// a stalled disk must not stall query traffic
			l.dropped++
		}
	}
	l.mu.Unlock()

	l.metrics.Observe(rec)
}

// Filter narrows what Recent returns. Zero values match everything.
type Filter struct {
	Connection string
	Action     models.ActionKind
	OnlyErrors bool
	Limit      int
}

// Recent returns matching records, newest first.
func (l *Logger) Recent(f Filter) []models.AuditRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := f.Limit
	if limit <= 0 || limit > l.count {
		limit = l.count
	}

	var out []models.AuditRecord
	for i := 1; i <= l.count && len(out) < limit; i++ {
		idx := (l.next - i + len(l.ring)) % len(l.ring)
		rec := l.ring[idx]
		if f.Connection != "" && rec.Connection != f.Connection {
			continue
		}
		if f.Action != "" && rec.Action != f.Action {
			continue
		}
		if f.OnlyErrors && rec.Success {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Dropped reports how many records the file sink discarded under pressure.
// The in-memory ring and metrics always got them.
func (l *Logger) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Metrics exposes the per-connection aggregates.
func (l *Logger) Metrics() *Metrics {
	return l.metrics
}

// Close drains the file queue and closes the sink. Records arriving after
// Close still land in the ring.
func (l *Logger) Close() error {
	if l.fileQueue == nil {
		return nil
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	close(l.fileQueue)
	<-l.done
	return l.sink.Close()
}

func (l *Logger) writeLoop() {
	defer close(l.done)
	for rec := range l.fileQueue {
		buf := utils.Get()
		if err := json.NewEncoder(buf).Encode(rec); err != nil {
			fiberlog.Warnf("audit: marshal record %s: %v", rec.ID, err)
			utils.Put(buf)
			continue
		}
		if _, err := l.sink.Write(buf.B); err != nil {
			fiberlog.Warnf("audit: write record %s: %v", rec.ID, err)
		}
		utils.Put(buf)
	}
}
