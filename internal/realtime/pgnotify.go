package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotifyChannel is the Postgres channel the inbox_entries trigger notifies on.
const NotifyChannel = "inbox_entries_changed"

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// PGFeed holds one LISTEN connection for the whole process and fans
// notifications out by actor.
type PGFeed struct {
	pool   *pgxpool.Pool
	logger *log.Logger
	d      *dispatcher
}

func NewPGFeed(pool *pgxpool.Pool, logger *log.Logger) *PGFeed {
	if logger == nil {
		logger = log.Default()
	}
	return &PGFeed{pool: pool, logger: logger, d: newDispatcher()}
}

func (f *PGFeed) Subscribe(ctx context.Context, actorID uuid.UUID) (<-chan Change, error) {
	ch := f.d.add(actorID)
	go func() {
		<-ctx.Done()
		f.d.remove(actorID, ch)
	}()
	return ch, nil
}

// Run listens until ctx is done, reconnecting with backoff. After every
// reconnect subscribers get a resync change.
func (f *PGFeed) Run(ctx context.Context) {
	backoff := minBackoff
	first := true
	for {
		err := f.listen(ctx, func() {
			backoff = minBackoff
			if !first {
				f.d.resync()
			}
			first = false
		})
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("realtime: listen connection lost", "err", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (f *PGFeed) listen(ctx context.Context, onReady func()) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	// Close instead of returning a LISTENing connection to the pool.
	defer func() {
		_ = conn.Conn().Close(context.Background())
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return err
	}
	f.logger.Info("realtime: listening", "channel", NotifyChannel)
	onReady()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}

		c, err := decodeNotification(n.Payload)
		if err != nil {
			f.logger.Warn("realtime: bad notification payload", "payload", n.Payload, "err", err)
			continue
		}
		f.d.dispatch(c)
	}
}

func decodeNotification(payload string) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, err
	}
	if c.ActorID == uuid.Nil {
		return Change{}, errors.New("missing actor_id")
	}
	return c, nil
}
