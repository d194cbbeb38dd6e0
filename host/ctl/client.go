// Package ctl is the host-side client for the governor console: framed
// commands over a serial port, synchronous replies, and a polling watch
// loop for live status.
package ctl

import (
	"fmt"
	"io"
	"time"

	"goclk/core"
	"goclk/host/serial"
	"goclk/protocol"
)

// Client talks the governor console protocol to one device.
type Client struct {
	transport *protocol.HostTransport
	port      io.ReadWriteCloser
	connected bool
	timeout   time.Duration
}

// NewClient returns a client that is not yet connected.
func NewClient() *Client {
	return &Client{timeout: 2 * time.Second}
}

// NewClientOver returns a connected client speaking over an already-open
// port. Used by tests and alternative transports.
func NewClientOver(port io.ReadWriteCloser) *Client {
	return &Client{
		transport: protocol.NewHostTransport(port),
		port:      port,
		connected: true,
		timeout:   2 * time.Second,
	}
}

// Connect opens the console on device with default settings.
func (c *Client) Connect(device string) error {
	return c.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig opens the console with explicit serial settings.
func (c *Client) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	c.port = port
	c.transport = protocol.NewHostTransport(port)
	c.connected = true

	// The board may have just enumerated; let its console come up.
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Close shuts the transport down and releases the port.
func (c *Client) Close() error {
	c.connected = false
	if c.transport != nil {
		return c.transport.Close()
	}
	return nil
}

// IsConnected reports whether the client has an open console.
func (c *Client) IsConnected() bool {
	return c.connected
}

// SetTimeout changes the per-request reply timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Status requests a state snapshot from the device.
func (c *Client) Status() (protocol.Status, error) {
	if err := c.send(protocol.MsgGetStatus, nil); err != nil {
		return protocol.Status{}, err
	}
	payload, err := c.response(protocol.MsgStatus)
	if err != nil {
		return protocol.Status{}, err
	}
	return protocol.DecodeStatus(&payload)
}

// SetMode switches the governor mode. In manual mode param is the level to
// switch to; in auto mode it is the descent floor.
func (c *Client) SetMode(mode core.Mode, param core.FreqLevel) error {
	if err := c.send(protocol.MsgSetMode, func(output protocol.OutputBuffer) {
		protocol.EncodeSetMode(output, mode, param)
	}); err != nil {
		return err
	}
	return c.result()
}

// SetLevel requests a fixed frequency level. Manual mode only.
func (c *Client) SetLevel(level core.FreqLevel) error {
	if err := c.send(protocol.MsgSetLevel, func(output protocol.OutputBuffer) {
		protocol.EncodeSetLevel(output, level)
	}); err != nil {
		return err
	}
	return c.result()
}

// Adjust moves the level by delta table positions; negative raises the
// frequency. Manual mode only.
func (c *Client) Adjust(delta int32) error {
	if err := c.send(protocol.MsgAdjust, func(output protocol.OutputBuffer) {
		protocol.EncodeAdjust(output, delta)
	}); err != nil {
		return err
	}
	return c.result()
}

// Events fetches the device's recent switch attempts, oldest first.
func (c *Client) Events() ([]protocol.Event, error) {
	if err := c.send(protocol.MsgGetEvents, nil); err != nil {
		return nil, err
	}
	payload, err := c.response(protocol.MsgEvents)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeEvents(&payload)
}

// Watch polls the device every interval and hands each snapshot to fn,
// stopping when fn returns false or a poll fails.
func (c *Client) Watch(interval time.Duration, fn func(protocol.Status) bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := c.Status()
		if err != nil {
			return err
		}
		if !fn(st) {
			return nil
		}
		<-ticker.C
	}
}

func (c *Client) send(msgID uint16, args func(output protocol.OutputBuffer)) error {
	if !c.connected {
		return fmt.Errorf("not connected")
	}
	return c.transport.SendCommandWithTimeout(msgID, args, c.timeout)
}

// result reads a command reply: the device answers every control command
// with an error-code message, CodeOK on success.
func (c *Client) result() error {
	payload, err := c.response(protocol.MsgError)
	if err != nil {
		return err
	}
	code, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return fmt.Errorf("malformed reply: %w", err)
	}
	return protocol.CodeToError(code)
}

// response returns the payload of the next frame carrying wantID, skipping
// stale frames from earlier requests. A MsgError frame with a failure code
// answers any request.
func (c *Client) response(wantID uint16) ([]byte, error) {
	deadline := time.Now().Add(c.timeout)
	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			return nil, fmt.Errorf("no %d response within %v", wantID, c.timeout)
		}

		msg, err := c.transport.ReceiveResponse(remain)
		if err != nil {
			return nil, err
		}

		payload := msg.Payload
		msgID, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			continue
		}

		if uint16(msgID) == wantID {
			return payload, nil
		}

		if uint16(msgID) == protocol.MsgError {
			code, err := protocol.DecodeVLQUint(&payload)
			if err != nil {
				continue
			}
			if cerr := protocol.CodeToError(code); cerr != nil {
				return nil, cerr
			}
		}
	}
}
