package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/segmentio/encoding/json"
)

const (
	DefaultInMemoryMaxBytes = 32 * 1048576 // 32MB

	expiryHeaderLen = 8
)

type InMemoryConfig struct {
	MaxBytes int
	Now      func() time.Time
}

// InMemory keeps values in a fastcache instance. Entries may be evicted once MaxBytes is reached.
type InMemory struct {
	DB  *fastcache.Cache
	now func() time.Time
}

var _ Cache = (*InMemory)(nil)

func NewInMemory(conf ...InMemoryConfig) (*InMemory, error) {
	cfg := InMemoryConfig{MaxBytes: DefaultInMemoryMaxBytes, Now: time.Now}
	if len(conf) > 0 {
		if conf[0].MaxBytes > 0 {
			cfg.MaxBytes = conf[0].MaxBytes
		}

		if conf[0].Now != nil {
			cfg.Now = conf[0].Now
		}
	}

	return &InMemory{
		DB:  fastcache.New(cfg.MaxBytes),
		now: cfg.Now,
	}, nil
}

func (i *InMemory) GetAs(_ context.Context, key string, out interface{}) error {
	result := i.DB.GetBig(nil, []byte(key))
	if len(result) < expiryHeaderLen {
		return ErrKeyNotExist
	}

	expireAt := int64(binary.BigEndian.Uint64(result[:expiryHeaderLen]))
	if expireAt > 0 && i.now().UnixNano() >= expireAt {
		i.DB.Del([]byte(key))
		return ErrKeyNotExist
	}

	return json.Unmarshal(result[expiryHeaderLen:], out)
}

// SetExp stores the value using fastcache big entries, so values above 64KB are kept too.
func (i *InMemory) SetExp(_ context.Context, key string, inValue interface{}, expireDur time.Duration) error {
	val, err := json.Marshal(inValue)
	if err != nil {
		err = fmt.Errorf("cannot marshal json value: %w", err)
		return err
	}

	var expireAt int64
	if expireDur > 0 {
		expireAt = i.now().Add(expireDur).UnixNano()
	}

	buf := make([]byte, expiryHeaderLen, expiryHeaderLen+len(val))
	binary.BigEndian.PutUint64(buf, uint64(expireAt))
	buf = append(buf, val...)

	i.DB.SetBig([]byte(key), buf)
	return nil
}

func (i *InMemory) Delete(_ context.Context, key string) error {
	i.DB.Del([]byte(key))
	return nil
}
