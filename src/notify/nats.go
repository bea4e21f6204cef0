package notify

import (
	"context"
	"encoding/json"
	"time"

	"git.handmade.network/hmn/boardmod/src/logging"
	"git.handmade.network/hmn/boardmod/src/oops"
	"git.handmade.network/hmn/boardmod/src/utils"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/nats-io/nats.go"
)

type NATS struct {
	conn   *nats.Conn
	prefix string
}

var _ Notifier = (*NATS)(nil)

// Connects to NATS, retrying with backoff until maxAttempts is reached or ctx
// is canceled. Once connected, the client reconnects on its own forever.
func ConnectNATS(ctx context.Context, url string, subjectPrefix string, maxAttempts int) (*NATS, error) {
	opts := []nats.Option{
		nats.Name("boardmod"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500 * time.Millisecond),
		nats.Timeout(3 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
	}

	b := &backoff.Backoff{
		Min:    200 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := nats.Connect(url, opts...)
		if err == nil {
			return &NATS{conn: conn, prefix: subjectPrefix}, nil
		}
		lastErr = err

		delay := b.Duration()
		logging.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("failed to connect to NATS")
		if attempt == maxAttempts {
			break
		}
		if err := utils.SleepContext(ctx, delay); err != nil {
			return nil, oops.New(err, "gave up connecting to NATS")
		}
	}
	return nil, oops.New(lastErr, "failed to connect to NATS after %d attempts", maxAttempts)
}

func (n *NATS) Publish(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return oops.New(err, "failed to encode %s event", e.Type)
	}

	msg := &nats.Msg{
		Subject: Subject(n.prefix, e.Type),
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(nats.MsgIdHdr, e.ID)

	if err := n.conn.PublishMsg(msg); err != nil {
		return oops.New(err, "failed to publish %s event", e.Type)
	}
	return nil
}

// Flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
