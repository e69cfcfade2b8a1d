package uid

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sony/sonyflake"
)

// UID generates unique, roughly time ordered ids.
type UID interface {
	NextID() (uint64, error)
}

var _ UID = (*sonyflake.Sonyflake)(nil)

// ErrUnavailable is returned when sonyflake cannot derive a machine id, usually no private ip.
var ErrUnavailable = errors.New("uid generator unavailable")

// DefaultStartTime is the sonyflake epoch of every id in this project.
var DefaultStartTime = time.Date(2022, 9, 23, 0, 0, 0, 0, time.UTC)

func NewSonyflake(startTime time.Time) (*sonyflake.Sonyflake, error) {
	if startTime.IsZero() {
		startTime = DefaultStartTime
	}

	gen := sonyflake.NewSonyflake(sonyflake.Settings{
		StartTime: startTime,
	})

	if gen == nil {
		return nil, fmt.Errorf("%w: sonyflake returned nil", ErrUnavailable)
	}

	return gen, nil
}

// NextString returns the next id formatted in base 10.
func NextString(gen UID) (string, error) {
	id, err := gen.NextID()
	if err != nil {
		return "", fmt.Errorf("cannot get next id: %w", err)
	}

	return strconv.FormatUint(id, 10), nil
}
