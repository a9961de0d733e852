package tardis

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"arbiflow/logger"

	"github.com/gorilla/websocket"
)

// MachineClient replays historical data through a locally running
// tardis-machine server. The ws-replay endpoint streams the original
// exchange messages over a single WebSocket connection.
type MachineClient struct {
	wsURL string
	log   *logger.Log
}

func NewMachineClient(wsURL string) *MachineClient {
	return &MachineClient{wsURL: wsURL, log: logger.GetLogger()}
}

// Replay connects to the ws-replay endpoint and forwards every message to
// fn. The local timestamp is taken at receive time since tardis-machine
// emits messages paced by their original capture times.
func (m *MachineClient) Replay(ctx context.Context, opts ReplayOptions, fn MessageFunc) error {
	q := url.Values{}
	q.Set("exchange", opts.Exchange)
	q.Set("from", opts.From.UTC().Format("2006-01-02"))
	q.Set("to", opts.To.UTC().Format("2006-01-02"))

	endpoint := fmt.Sprintf("%s/ws-replay?%s", m.wsURL, q.Encode())
	log := m.log.WithComponent("tardis_machine").WithFields(logger.Fields{
		"exchange": opts.Exchange,
		"endpoint": endpoint,
	})

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial tardis-machine: %w", err)
	}
	defer conn.Close()

	log.Info("connected to tardis-machine replay stream")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	count := 0
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithField("messages", count).Info("replay stream closed")
				return nil
			}
			return fmt.Errorf("read replay message: %w", err)
		}

		if err := fn(time.Now().UTC(), payload); err != nil {
			return err
		}
		logger.IncrementReplayRead(len(payload))
		count++
	}
}
