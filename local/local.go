// Package local provides an in-process stagefund connection.
//
// For hosts compiled into the same binary as the application, the
// adapter wraps it with lifecycle enforcement and capability discovery
// and no serialization.
package local

import (
	"context"

	"github.com/blockberries/stagefund"
	"github.com/blockberries/stagefund/server"
	"github.com/blockberries/stagefund/types"
)

var _ stagefund.Connection = (*Connection)(nil)

// Connection wraps a local Lifecycle implementation.
type Connection struct {
	srv *server.Server
}

// NewConnection creates an in-process connection wrapping app.
func NewConnection(app stagefund.Lifecycle, opts ...server.Option) *Connection {
	return &Connection{srv: server.New(app, opts...)}
}

func (c *Connection) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	return c.srv.Handshake(ctx, req)
}

func (c *Connection) CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	return c.srv.CheckTx(ctx, tx, mctx)
}

func (c *Connection) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	return c.srv.ExecuteBlock(ctx, block)
}

func (c *Connection) Commit(ctx context.Context) (types.CommitResult, error) {
	return c.srv.Commit(ctx)
}

func (c *Connection) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	return c.srv.Query(ctx, req)
}

func (c *Connection) Capabilities() types.Capabilities {
	return c.srv.Capabilities()
}

func (c *Connection) AsSimulator() stagefund.Simulator {
	return c.srv.AsSimulator()
}

func (c *Connection) Close() error { return c.srv.Close() }

// Server returns the underlying server.
func (c *Connection) Server() *server.Server {
	return c.srv
}
