package container

import (
	"context"
	"fmt"
	"io"

	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
	"go.uber.org/multierr"
)

type Closer interface {
	io.Closer

	Name() string
}

type NamedCloser struct {
	name   string
	closer io.Closer
}

var _ Closer = (*NamedCloser)(nil)

func NewNamedCloser(name string, closer io.Closer) *NamedCloser {
	return &NamedCloser{
		name:   name,
		closer: closer,
	}
}

func (d *NamedCloser) Close() error {
	return d.closer.Close()
}

func (d *NamedCloser) Name() string {
	return d.name
}

// closerFunc lets a plain func be registered as a closer.
type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

// closeAll closes in reverse registration order, so later dependencies go first.
func closeAll(ctx context.Context, closers []Closer) (err error) {
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if c == nil {
			continue
		}

		if _err := c.Close(); _err != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", c.Name(), _err))
			continue
		}

		logger.Debug(ctx, fmt.Sprintf("%s: success to close", c.Name()))
	}

	return
}
