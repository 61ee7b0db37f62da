package mail

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
)

// Locker takes a lock that expires on its own after ttl.
type Locker interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// Expirer runs Expire at most once per lock period across every instance
// sharing the Locker.
type Expirer struct {
	svc    *Service
	locker Locker
	key    string
	ttl    time.Duration
	owner  string
	logger *zap.Logger
}

// NewExpirer creates an Expirer. A nil locker runs every time.
func NewExpirer(svc *Service, locker Locker, key string, ttl time.Duration, logger *zap.Logger) *Expirer {
	owner, _ := os.Hostname()
	return &Expirer{svc: svc, locker: locker, key: key, ttl: ttl, owner: owner, logger: logger}
}

// Run expires mail unless another instance holds the lock. It reports
// whether this call did the work.
func (e *Expirer) Run(ctx context.Context) (ExpireResult, bool) {
	if e.locker != nil {
		ok, err := e.locker.SetNX(ctx, e.key, e.owner, e.ttl)
		if err != nil {
			e.logger.Warn("expire lock failed", zap.String("key", e.key), zap.Error(err))
			return ExpireResult{}, false
		}
		if !ok {
			e.logger.Debug("expire skipped: lock held elsewhere", zap.String("key", e.key))
			return ExpireResult{}, false
		}
	}
	res := e.svc.Expire(ctx)
	e.logger.Info("mail expired",
		zap.Int64("total", res.Total),
		zap.Int64("trash", res.Trash),
		zap.Int64("read", res.Read),
		zap.Int64("unread", res.Unread))
	return res, true
}
