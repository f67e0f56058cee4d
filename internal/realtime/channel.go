// Package realtime maintains the push channel to the hosted chat backend: a
// single websocket connection joined to the room named by the session id,
// redialed automatically for as long as the binding is wanted.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/parleychat/parley-go/internal/model/chat"
)

// Channel is a reconnecting websocket binding to exactly one session room at
// a time. Inbound events pass the reply/external/room filter before they
// reach the registered handlers; everything else is dropped silently.
type Channel struct {
	url        string
	authorName string
	backoff    time.Duration
	dialer     *websocket.Dialer
	logger     *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
	gen       uint64
	onMessage func(chat.Envelope)
	onFile    func(chat.Envelope)
}

// NewChannel builds an unconnected channel. backoff is the fixed pause
// between reconnect attempts.
func NewChannel(url, authorName string, backoff time.Duration, logger *zap.Logger) *Channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		url:        url,
		authorName: authorName,
		backoff:    backoff,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:     logger,
	}
}

// OnMessage registers the handler for accepted inbound chat messages.
func (c *Channel) OnMessage(fn func(chat.Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// OnFileAnnounced registers the handler for accepted inbound file events.
func (c *Channel) OnFileAnnounced(fn func(chat.Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFile = fn
}

// Connect binds the channel to sessionID, tearing down any prior connection
// first. The initial dial happens synchronously; afterwards the channel
// redials on its own with a fixed backoff until Disconnect (or a newer
// Connect) supersedes this binding. A failed initial dial is returned to the
// caller but the retry loop keeps running regardless.
func (c *Channel) Connect(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.sessionID = sessionID
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	err := c.dial(ctx, gen, sessionID)
	if err != nil {
		c.logger.Warn("realtime dial failed, will retry",
			zap.String("session", sessionID), zap.Error(err))
		go c.redialLoop(ctx, gen, sessionID)
	}
	return err
}

// dial opens one connection, joins the room and starts the read loop.
func (c *Channel) dial(ctx context.Context, gen uint64, sessionID string) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if gen != c.gen {
		// A newer Connect or Disconnect superseded this attempt.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	// Join before publishing the connection so Send never interleaves a
	// write with the join frame.
	if err := conn.WriteJSON(chat.Frame{Type: chat.FrameJoin, Room: sessionID}); err != nil {
		c.mu.Unlock()
		conn.Close()
		return err
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(ctx, gen, sessionID, conn)
	return nil
}

// readLoop drains one connection until it breaks, then hands over to the
// redial loop if this binding is still the current one.
func (c *Channel) readLoop(ctx context.Context, gen uint64, sessionID string, conn *websocket.Conn) {
	for {
		var f chat.Frame
		if err := conn.ReadJSON(&f); err != nil {
			conn.Close()
			if !c.current(gen) || ctx.Err() != nil {
				return
			}
			c.logger.Warn("realtime connection lost, reconnecting",
				zap.String("session", sessionID), zap.Error(err))
			c.redialLoop(ctx, gen, sessionID)
			return
		}

		c.dispatch(gen, f)
	}
}

// redialLoop retries the dial with a fixed pause until it succeeds or the
// binding is superseded. Retries are unbounded.
func (c *Channel) redialLoop(ctx context.Context, gen uint64, sessionID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff):
		}

		if !c.current(gen) {
			return
		}

		if err := c.dial(ctx, gen, sessionID); err != nil {
			c.logger.Warn("realtime redial failed",
				zap.String("session", sessionID), zap.Error(err))
			continue
		}
		return
	}
}

// dispatch routes an inbound frame through the acceptance filter to the
// registered handler. The session id is re-read at delivery time so events
// straddling a session swap are dropped.
func (c *Channel) dispatch(gen uint64, f chat.Frame) {
	if f.Event == nil {
		return
	}

	c.mu.Lock()
	if gen != c.gen || !f.Event.Accepted(c.sessionID) {
		c.mu.Unlock()
		return
	}
	onMessage, onFile := c.onMessage, c.onFile
	c.mu.Unlock()

	switch f.Type {
	case chat.FrameMessage:
		if onMessage != nil {
			onMessage(*f.Event)
		}
	case chat.FrameFile:
		if onFile != nil {
			onFile(*f.Event)
		}
	}
}

// current reports whether gen is still the live binding.
func (c *Channel) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

// Send emits an outbound text event tagged with the bound session id and the
// configured author name.
func (c *Channel) Send(text string) error {
	return c.write(chat.FrameMessage, chat.Envelope{
		Direction:  chat.DirectionQuery,
		Channel:    chat.ChannelExternal,
		AuthorType: chat.AuthorHuman,
		AuthorName: c.authorName,
		Text:       text,
		Timestamp:  time.Now().UTC(),
	})
}

// AnnounceFileSent emits an outbound "file available" event. It must only be
// called after the upload itself has completed; the event carries no content.
func (c *Channel) AnnounceFileSent(url, filename string) error {
	return c.write(chat.FrameFile, chat.Envelope{
		Direction:  chat.DirectionQuery,
		Channel:    chat.ChannelExternal,
		AuthorType: chat.AuthorHuman,
		AuthorName: c.authorName,
		Timestamp:  time.Now().UTC(),
		FileURL:    url,
		Filename:   filename,
	})
}

func (c *Channel) write(frameType string, env chat.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	env.Room = c.sessionID
	return c.conn.WriteJSON(chat.Frame{Type: frameType, Event: &env})
}

// Disconnect drops the handlers and closes the connection. Safe to call when
// not connected.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.onMessage = nil
	c.onFile = nil
	c.sessionID = ""

	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
	}
}
