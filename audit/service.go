// Package audit keeps a durable trail of mail mutations: sends, status
// changes and deletions. Writes are batched off the request path.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kasuganosora/ucsmail/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditEntry holds one audit event to be logged.
type AuditEntry struct {
	TraceID  string
	CharID   *uint32
	CharName string
	Action   string
	Request  interface{}
	Error    string
	IP       string
}

// Options tunes the write queue.
type Options struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultOptions are used for every zero field passed to New.
var DefaultOptions = Options{QueueSize: 1024, BatchSize: 100, FlushInterval: 2 * time.Second}

// Service writes audit entries to the audit_logs table in batches.
type Service struct {
	db      *gorm.DB
	opts    Options
	queue   chan *model.AuditLog
	stop    chan struct{}
	stopped sync.Once
	done    chan struct{}
	logger  *zap.Logger
}

// New starts the batch writer. At most one Options value is read.
func New(db *gorm.DB, logger *zap.Logger, opts ...Options) *Service {
	o := DefaultOptions
	if len(opts) > 0 {
		if opts[0].QueueSize > 0 {
			o.QueueSize = opts[0].QueueSize
		}
		if opts[0].BatchSize > 0 {
			o.BatchSize = opts[0].BatchSize
		}
		if opts[0].FlushInterval > 0 {
			o.FlushInterval = opts[0].FlushInterval
		}
	}
	svc := &Service{
		db:     db,
		opts:   o,
		queue:  make(chan *model.AuditLog, o.QueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go svc.writer()
	return svc
}

// Log queues entry. A full queue drops the entry rather than block the
// mail path.
func (svc *Service) Log(entry AuditEntry) {
	req, err := json.Marshal(entry.Request)
	if err != nil {
		req = []byte("null")
	}
	row := &model.AuditLog{
		TraceID:  entry.TraceID,
		CharID:   entry.CharID,
		CharName: entry.CharName,
		Action:   entry.Action,
		Request:  datatypes.JSON(req),
		Error:    entry.Error,
		IP:       entry.IP,
	}
	select {
	case svc.queue <- row:
	default:
		svc.logger.Warn("audit queue full, entry dropped",
			zap.String("action", entry.Action),
			zap.String("trace_id", entry.TraceID))
	}
}

// Stop flushes queued entries and waits for the writer, or for ctx.
// It is safe to call more than once.
func (svc *Service) Stop(ctx context.Context) {
	svc.stopped.Do(func() { close(svc.stop) })
	if ctx == nil {
		<-svc.done
		return
	}
	select {
	case <-svc.done:
	case <-ctx.Done():
		svc.logger.Warn("audit stop timed out; pending entries lost")
	}
}

func (svc *Service) writer() {
	defer close(svc.done)
	ticker := time.NewTicker(svc.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, svc.opts.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.CreateInBatches(batch, svc.opts.BatchSize).Error; err != nil {
			svc.logger.Error("audit write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case row := <-svc.queue:
			batch = append(batch, row)
			if len(batch) >= svc.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stop:
			for {
				select {
				case row := <-svc.queue:
					batch = append(batch, row)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Recent returns up to limit entries, newest first. A non-zero charID
// restricts the result to that character.
func (svc *Service) Recent(ctx context.Context, charID uint32, limit int) ([]model.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := svc.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if charID != 0 {
		q = q.Where("char_id = ?", charID)
	}
	var rows []model.AuditLog
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Prune deletes entries created before cutoff.
func (svc *Service) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := svc.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.AuditLog{})
	return res.RowsAffected, res.Error
}
