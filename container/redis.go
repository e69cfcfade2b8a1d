package container

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/yusufsyaifudin/bulkmail/config"
	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
	"github.com/yusufsyaifudin/bulkmail/pkg/validator"
	"go.uber.org/multierr"
)

// RedisConnMaker holds one client per label of the redis config section.
type RedisConnMaker struct {
	ctx     context.Context
	conf    config.Redis
	clients map[string]redis.UniversalClient
	closer  []Closer
}

func NewRedisConnMaker(ctx context.Context, conf config.Redis) (*RedisConnMaker, error) {
	instance := &RedisConnMaker{
		ctx:     ctx,
		conf:    conf,
		clients: map[string]redis.UniversalClient{},
		closer:  make([]Closer, 0),
	}

	err := instance.connect()
	if err != nil {
		// close previous opened connection if error happen
		err = multierr.Append(err, instance.Close())
		return nil, err
	}

	return instance, nil
}

func (i *RedisConnMaker) connect() error {
	ctx := i.ctx

	for key, connInfo := range i.conf {
		key = normalizeLabel(key)
		if err := validator.Var(key, "required,alphanum"); err != nil {
			return fmt.Errorf("error connecting to redis key '%s': %w", key, err)
		}

		if len(connInfo.Address) == 0 {
			return fmt.Errorf("redis %s has no address", key)
		}

		var redisClient redis.UniversalClient
		switch connInfo.Mode {
		case "single":
			redisClient = redis.NewClient(&redis.Options{
				Addr:     connInfo.Address[0],
				Username: connInfo.Username,
				Password: connInfo.Password,
				DB:       connInfo.DB,
			})

		case "sentinel":
			redisClient = redis.NewFailoverClient(&redis.FailoverOptions{
				SentinelAddrs: connInfo.Address,
				Username:      connInfo.Username,
				Password:      connInfo.Password,
				DB:            connInfo.DB,
				MasterName:    connInfo.MasterName,
			})

		case "cluster":
			// cluster mode is not support DB selection
			redisClient = redis.NewClusterClient(&redis.ClusterOptions{
				Addrs:    connInfo.Address,
				Username: connInfo.Username,
				Password: connInfo.Password,
			})

		default:
			return fmt.Errorf("unknown redis mode: %s", connInfo.Mode)
		}

		// register before ping so a failed one is still closed
		i.clients[key] = redisClient
		i.closer = append(i.closer, NewNamedCloser("redis "+key, redisClient))

		err := redisClient.Ping(ctx).Err()
		if err != nil {
			return fmt.Errorf("error ping redis %s: %w", key, err)
		}
	}

	return nil
}

func (i *RedisConnMaker) Get(key string) (redis.UniversalClient, error) {
	key = normalizeLabel(key)
	v, ok := i.clients[key]
	if !ok {
		return nil, fmt.Errorf("key %s is not found in any redis topology", key)
	}

	return v, nil
}

func (i *RedisConnMaker) Close() error {
	logger.Debug(i.ctx, "redis: trying to close")

	err := closeAll(i.ctx, i.closer)
	if err != nil {
		logger.Error(i.ctx, "redis: some error occurred when closing dep", logger.KV("error", err))
	}

	return err
}

func normalizeLabel(label string) string {
	return strings.TrimSpace(strings.ToLower(label))
}
