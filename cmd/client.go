// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/phasecut/pkg/dimmer"
	"github.com/rs/zerolog/log"
)

var (
	// ErrTimeout is returned when the dimmer does not answer in time
	ErrTimeout = errors.New("no reply from dimmer")
	// ErrNAK is returned when the dimmer rejects a command
	ErrNAK = errors.New("dimmer replied NAK")
)

// Client runs request/reply transactions with a dimmer. The protocol has no
// sequence numbers, so transactions are strictly one at a time.
type Client struct {
	conn    Connection
	timeout time.Duration

	mu      sync.Mutex // serializes transactions
	replies chan *dimmer.Reply
	dead    chan struct{}
	readErr error
}

// NewClient starts reading replies from conn.
func NewClient(conn Connection, timeout time.Duration) *Client {
	c := &Client{
		conn:    conn,
		timeout: timeout,
		replies: make(chan *dimmer.Reply, 16),
		dead:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	decoder := dimmer.NewReplyDecoder()
	buf := make([]byte, 128)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			c.readErr = err
			close(c.dead)
			return
		}

		for i := 0; i < n; i++ {
			reply, err := decoder.DecodeByte(buf[i])
			if err != nil {
				log.Debug().Err(err).Msg("undecodable reply byte")
				continue
			}
			if reply == nil {
				continue
			}
			select {
			case c.replies <- reply:
			default:
				log.Warn().Stringer("kind", reply.Kind).Msg("reply dropped, nobody waiting")
			}
		}
	}
}

// Done is closed when the connection is lost.
func (c *Client) Done() <-chan struct{} {
	return c.dead
}

// Err returns the read error that ended the connection.
func (c *Client) Err() error {
	select {
	case <-c.dead:
		return c.readErr
	default:
		return nil
	}
}

// Send writes a request without waiting for a reply, for dimmers in
// multi-address mode.
func (c *Client) Send(req *dimmer.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.conn.Write(req.Encode()); err != nil {
		return fmt.Errorf("failed to send %s: %w", dimmer.FormatCommand(req.Command), err)
	}
	return nil
}

// Do sends a request and waits for its reply.
func (c *Client) Do(req *dimmer.Request) (*dimmer.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Late replies to earlier timed-out requests would be taken as ours.
drain:
	for {
		select {
		case r := <-c.replies:
			log.Debug().Stringer("kind", r.Kind).Msg("discarding stale reply")
		default:
			break drain
		}
	}

	wire := req.Encode()
	log.Debug().Str("command", dimmer.FormatCommand(req.Command)).Uint8("address", req.Address).Bytes("wire", wire).Msg("send")
	if _, err := c.conn.Write(wire); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", dimmer.FormatCommand(req.Command), err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case r := <-c.replies:
		return r, nil
	case <-c.dead:
		return nil, fmt.Errorf("connection lost: %w", c.readErr)
	case <-timer.C:
		return nil, fmt.Errorf("%s: %w", dimmer.FormatCommand(req.Command), ErrTimeout)
	}
}

// Exec sends a write command and expects an ACK.
func (c *Client) Exec(req *dimmer.Request) error {
	r, err := c.Do(req)
	if err != nil {
		return err
	}
	switch r.Kind {
	case dimmer.ReplyACK:
		return nil
	case dimmer.ReplyNAK:
		return fmt.Errorf("%s: %w", dimmer.FormatCommand(req.Command), ErrNAK)
	default:
		return fmt.Errorf("%s: unexpected value reply 0x%x", dimmer.FormatCommand(req.Command), r.Value)
	}
}

// Query sends a read command and returns the value.
func (c *Client) Query(address, cmd uint8) (uint16, error) {
	req := dimmer.NewRead(address, cmd)
	r, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	switch r.Kind {
	case dimmer.ReplyValue:
		return r.Value, nil
	case dimmer.ReplyNAK:
		return 0, fmt.Errorf("%s: %w", dimmer.FormatCommand(req.Command), ErrNAK)
	default:
		return 0, fmt.Errorf("%s: unexpected ACK", dimmer.FormatCommand(req.Command))
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// exitCode maps a transaction error to the command exit codes:
// 1 for protocol failures (NAK, timeout), 2 for connection errors.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNAK), errors.Is(err, ErrTimeout):
		return 1
	default:
		return 2
	}
}
