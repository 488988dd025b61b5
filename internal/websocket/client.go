// Botwatch - Behavioral Bot Detection Gate
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/botwatch

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/botwatch/internal/logging"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	maxFrame    = 512 // dashboards only ever send {"type":"ping"}
	attemptsBuf = 64
)

// anonymousViewer names connections that reached the hub without admin claims.
const anonymousViewer = "anonymous"

var connSeq atomic.Uint64

// Client is one admin dashboard watching the live attempt feed. The feed is
// one-way: the only frame a dashboard may send is a ping.
type Client struct {
	id         uint64
	viewer     string
	remoteAddr string
	hub        *Hub
	conn       *websocket.Conn
	send       chan Message
}

// NewClient wraps conn for viewer, the admin username from the request's
// claims. Register it with the hub, then call Start.
func NewClient(hub *Hub, conn *websocket.Conn, viewer string) *Client {
	if viewer == "" {
		viewer = anonymousViewer
	}
	return &Client{
		id:         connSeq.Add(1),
		viewer:     viewer,
		remoteAddr: conn.RemoteAddr().String(),
		hub:        hub,
		conn:       conn,
		send:       make(chan Message, attemptsBuf),
	}
}

// ID orders clients by connection time.
func (c *Client) ID() uint64 { return c.id }

// Viewer returns the admin watching through this connection.
func (c *Client) Viewer() string { return c.viewer }

// Start runs the feed writer and the control reader.
func (c *Client) Start() {
	go c.feed()
	go c.listen()
}

func (c *Client) logEvent(e *zerolog.Event) *zerolog.Event {
	return e.Uint64("conn_id", c.id).Str("viewer", c.viewer).Str("remote_addr", c.remoteAddr)
}

// listen keeps the read deadline alive and answers pings. Any other frame
// is ignored; a malformed one ends the session.
func (c *Client) listen() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrame)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logEvent(logging.Warn()).Err(err).Msg("Dashboard connection closed unexpectedly")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(frame, &msg); err != nil {
			c.logEvent(logging.Debug()).Err(err).Msg("Dashboard sent a malformed frame")
			return
		}
		if msg.Type != MessageTypePing {
			continue
		}
		select {
		case c.send <- Message{Type: MessageTypePong}:
		default:
		}
	}
}

// feed writes queued attempts and keeps the connection alive with pings.
// The hub closes send when it drops the client.
func (c *Client) feed() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			frame, err := MarshalMessage(msg)
			if err != nil {
				c.logEvent(logging.Error()).Err(err).Str("type", msg.Type).Msg("Failed to encode dashboard frame")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logEvent(logging.Debug()).Err(err).Msg("Dashboard write failed")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
