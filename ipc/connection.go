package ipc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
)

// Handler processes a received envelope. Return nil to send no reply.
type Handler func(env Envelope) (*Envelope, error)

// Connection represents a single mod instance talking to the sidecar.
// Each AI player gets its own connection, identified after the hello handshake.
type Connection struct {
	conn     net.Conn
	handlers map[string]Handler
	Player   int

	writeMu sync.Mutex
}

func NewConnection(conn net.Conn, handlers map[string]Handler) *Connection {
	if handlers == nil {
		handlers = make(map[string]Handler)
	}
	return &Connection{
		conn:     conn,
		handlers: handlers,
	}
}

func (c *Connection) RegisterHandler(msgType string, handler Handler) {
	c.handlers[msgType] = handler
}

func (c *Connection) Send(msgType string, data any) error {
	env, err := NewEnvelope(msgType, data)
	if err != nil {
		return err
	}
	return c.write(env)
}

func (c *Connection) write(env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteEnvelope(c.conn, env)
}

// ReadLoop blocks until the connection closes, errors, or ctx is done. It owns
// the conn lifetime so callers don't need to track cleanup.
func (c *Connection) ReadLoop(ctx context.Context) {
	defer c.conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	for {
		env, err := ReadEnvelope(c.conn)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				slog.Info("connection closed", "player", c.Player)
			} else {
				slog.Warn("connection read ended", "player", c.Player, "error", err)
			}
			return
		}

		handler, ok := c.handlers[env.Type]
		if !ok {
			slog.Warn("no handler for message type", "type", env.Type)
			continue
		}

		resp, err := handler(env)
		if err != nil {
			slog.Error("handler error", "type", env.Type, "error", err)
			continue
		}

		if resp != nil {
			if err := c.write(*resp); err != nil {
				slog.Error("failed to send response", "type", resp.Type, "error", err)
				return
			}
			slog.Debug("sent response", "type", resp.Type, "player", c.Player)
		}
	}
}
