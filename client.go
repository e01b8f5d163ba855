package objio

import (
	"context"
	"errors"
	"log/slog"

	"github.com/andreyvit/objio/engine"
)

// Options configures a Client.
type Options struct {
	Engine engine.Engine

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Verbose enables per-operation debug logs.
	Verbose bool

	// Allocator backs every buffer; defaults to NewPoolAllocator().
	Allocator Allocator

	// StrictBuffers makes a double Buffer.Release panic.
	StrictBuffers bool
}

// Client binds objects to an engine and owns the buffer arena shared by
// their descriptors.
type Client struct {
	eng     engine.Engine
	arena   *Arena
	logger  *slog.Logger
	verbose bool
}

func New(opt Options) (*Client, error) {
	if opt.Engine == nil {
		return nil, errors.New("objio: Options.Engine is required")
	}
	c := &Client{
		eng:     opt.Engine,
		arena:   NewArena(opt.Allocator, opt.StrictBuffers),
		logger:  opt.Logger,
		verbose: opt.Verbose,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Object returns a closed Object bound to id.
func (c *Client) Object(id ObjectID) *Object {
	return &Object{c: c, id: id}
}

func (c *Client) Arena() *Arena {
	return c.arena
}

// Buffer allocates a buffer from the client's arena.
func (c *Client) Buffer(n int) *Buffer {
	return c.arena.Buffer(n)
}

// Close closes the engine. Objects must be closed first.
func (c *Client) Close() error {
	return c.eng.Close()
}

func (c *Client) debug(msg string, attrs ...slog.Attr) {
	if c.verbose {
		c.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
	}
}

func (c *Client) warn(msg string, err error, attrs ...slog.Attr) {
	attrs = append(attrs, slog.Any("err", err))
	c.logger.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
}
