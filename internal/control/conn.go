package control

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"pulsecast/internal/domain"
)

// conn is one websocket client. Emit is safe from any goroutine.
type conn struct {
	id   string
	ws   *websocket.Conn
	cfg  Config
	send chan domain.Event
	done chan struct{}
	once sync.Once
}

func newConn(id string, ws *websocket.Conn, cfg Config) *conn {
	return &conn{
		id:   id,
		ws:   ws,
		cfg:  cfg,
		send: make(chan domain.Event, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *conn) Emit(e domain.Event) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- e:
	case <-c.done:
	default:
		log.Warn().Str("conn_id", c.id).Str("event", string(e.Type)).Msg("client too slow, dropping event")
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writeLoop serializes all writes and sends keepalive pings.
func (c *conn) writeLoop() {
	ping := time.NewTicker(c.cfg.PingInterval)
	defer ping.Stop()
	defer c.close()

	for {
		select {
		case <-c.done:
			return
		case e := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteJSON(e); err != nil {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("write failed")
				return
			}
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("ping failed")
				return
			}
		}
	}
}

// readLoop hands every frame to fn until the peer goes away or stops answering pings.
func (c *conn) readLoop(fn func([]byte)) {
	c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	alive := func() { _ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout)) }
	alive()
	c.ws.SetPongHandler(func(string) error {
		alive()
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("read failed")
			}
			return
		}
		alive()
		fn(data)
	}
}
