package ledger

import (
	"context"
	"time"

	"github.com/joseph-ayodele/shift-reports/internal/entity"
)

// Lister is the read side a Poller needs.
type Lister interface {
	List(ctx context.Context) ([]*entity.Upload, error)
}

// Poller delivers periodic ledger snapshots. Dashboards poll rather than
// block on processing.
type Poller struct {
	src Lister
}

func NewPoller(src Lister) *Poller { return &Poller{src: src} }

// Subscribe calls cb with a snapshot immediately and then every interval
// until ctx is done. List errors are passed to cb and polling continues.
// It blocks; run it in a goroutine.
func (p *Poller) Subscribe(ctx context.Context, interval time.Duration, cb func([]*entity.Upload, error)) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		rows, err := p.src.List(ctx)
		if ctx.Err() != nil {
			return
		}
		cb(rows, err)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
