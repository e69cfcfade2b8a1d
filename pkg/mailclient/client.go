package mailclient

import (
	"context"
	"io"
)

// Client sends messages over one authenticated connection.
type Client interface {
	io.Closer
	Send(ctx context.Context, msg Message) error
}
