package transport

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dreamware/vindex/internal/transport/vindexpb"
	"github.com/dreamware/vindex/internal/vterrors"
)

// Client dials and caches one gRPC connection per peer address, reusing it
// across calls (grpc.ClientConn is safe for concurrent use and already
// multiplexes streams internally, so there is no connection pool beyond
// this one-per-peer cache).
type Client struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewClient returns an empty connection cache.
func NewClient() *Client {
	return &Client{conns: map[string]*grpc.ClientConn{}}
}

func (c *Client) connFor(addr string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[addr]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, &vterrors.TransportError{Peer: addr, Cause: err}
	}
	c.conns[addr] = conn
	return conn, nil
}

// Invoke sends one envelope to addr and returns the peer's reply payload.
// compress requests lz4 compression for this call when the payload is
// large enough per CompressionThresholdBytes; the caller decides, the
// transport layer never inspects payload size itself.
func (c *Client) Invoke(ctx context.Context, addr, kind string, payload []byte, compress bool) ([]byte, error) {
	conn, err := c.connFor(addr)
	if err != nil {
		return nil, err
	}

	req := &vindexpb.Envelope{
		Kind:            kind,
		ProtocolVersion: vindexpb.CurrentProtocolVersion,
		Compressed:      compress,
		Payload:         payload,
	}
	resp := new(vindexpb.Envelope)

	opts := []grpc.CallOption{grpc.CallContentSubtype(codecName)}
	if compress {
		opts = append(opts, grpc.UseCompressor("lz4"))
	}

	if err := conn.Invoke(ctx, "/vindex.Transport/Invoke", req, resp, opts...); err != nil {
		return nil, &vterrors.TransportError{Peer: addr, Cause: err}
	}
	if resp.ProtocolVersion > vindexpb.CurrentProtocolVersion {
		return nil, &vterrors.TransportError{Peer: addr, Cause: fmt.Errorf(
			"peer replied with protocol version %d, this node understands %d",
			resp.ProtocolVersion, vindexpb.CurrentProtocolVersion)}
	}
	return resp.Payload, nil
}

// Close tears down every cached connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for addr, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("transport: close conn to %s: %w", addr, err)
		}
	}
	c.conns = map[string]*grpc.ClientConn{}
	return firstErr
}
