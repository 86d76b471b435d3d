// Package client implements the request-side half of the wire
// protocol: each call dials the server fresh, sends exactly one
// request, reads exactly one response, and closes the connection.
// There is no local fallback store; every operation goes over the
// wire.
package client

import (
	"fmt"
	"net"
	"time"

	"github.com/wanjiru/kvs/internal/protocol"
)

// DefaultDialTimeout bounds how long a call waits to establish the
// TCP connection before giving up.
const DefaultDialTimeout = 5 * time.Second

// Client issues requests against a single server address. It holds no
// persistent connection; Get/Set/Remove each dial, round-trip, and
// close, matching the server's one-connection-per-request model.
type Client struct {
	addr        string
	dialTimeout time.Duration
}

// New returns a Client targeting addr.
func New(addr string) *Client {
	return &Client{addr: addr, dialTimeout: DefaultDialTimeout}
}

// WithDialTimeout overrides DefaultDialTimeout.
func (c *Client) WithDialTimeout(d time.Duration) *Client {
	c.dialTimeout = d
	return c
}

func (c *Client) call(cmd protocol.Command) (protocol.Message, error) {
	conn, err := net.DialTimeout("tcp", c.addr, c.dialTimeout)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	if err := protocol.Send(protocol.NewRequest(cmd), conn); err != nil {
		return protocol.Message{}, fmt.Errorf("send request: %w", err)
	}

	resp, err := protocol.ReceiveMessage(conn)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("receive response: %w", err)
	}

	return resp, nil
}

// Get fetches key. It returns (value, true, nil) on a hit, (_, false,
// nil) when the server reports the key absent, and a non-nil error for
// a transport or protocol failure or when the server replies with an
// Error message.
func (c *Client) Get(key string) (string, bool, error) {
	resp, err := c.call(protocol.Command{Kind: protocol.CommandGet, Key: key})
	if err != nil {
		return "", false, err
	}

	switch resp.Kind {
	case protocol.KindError:
		return "", false, fmt.Errorf("%s", resp.Error)
	case protocol.KindResponse:
		if resp.Value == "Key not found" {
			return "", false, nil
		}
		return resp.Value, true, nil
	default:
		return "", false, fmt.Errorf("unexpected response kind %q", resp.Kind)
	}
}

// Set stores key/value.
func (c *Client) Set(key, value string) error {
	resp, err := c.call(protocol.Command{Kind: protocol.CommandSet, Key: key, Value: value})
	if err != nil {
		return err
	}
	return asError(resp)
}

// Remove deletes key, failing if it does not exist.
func (c *Client) Remove(key string) error {
	resp, err := c.call(protocol.Command{Kind: protocol.CommandRemove, Key: key})
	if err != nil {
		return err
	}
	return asError(resp)
}

func asError(resp protocol.Message) error {
	switch resp.Kind {
	case protocol.KindOk:
		return nil
	case protocol.KindError:
		return fmt.Errorf("%s", resp.Error)
	default:
		return fmt.Errorf("unexpected response kind %q", resp.Kind)
	}
}
