package container

import (
	"context"
	"fmt"

	"github.com/yusufsyaifudin/bulkmail/config"
	"github.com/yusufsyaifudin/bulkmail/internal/svc/campaignsvc"
	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
	"github.com/yusufsyaifudin/bulkmail/transport/restapi/wshub"
	"go.uber.org/multierr"
)

// Container is an abstraction layer to be used in use-case to stitch all business logic.
// Use this when you pass into another struct.
type Container interface {
	Repositories() Repositories
	Services() Services
	Hub() *wshub.Hub
}

// DefaultContainerImpl the real implementation of Container
type DefaultContainerImpl struct {
	ctx      context.Context
	redis    *RedisConnMaker
	repos    *RepositoryImpl
	services *ServicesImpl
	hub      *wshub.Hub
}

// Ensure that DefaultContainerImpl implements Container
var _ Container = (*DefaultContainerImpl)(nil)

// Setup return pointer because it must be closed in deferred mode by the caller.
// Anything opened before a failing step is closed before returning the error.
func Setup(ctx context.Context, conf *config.Config) (dep *DefaultContainerImpl, err error) {
	if conf == nil {
		err = fmt.Errorf("nil config on container setup")
		return
	}

	dep = &DefaultContainerImpl{ctx: ctx}
	defer func() {
		if err != nil {
			err = multierr.Append(err, dep.Close())
			dep = nil
		}
	}()

	// redis only backs the campaign store for now
	if conf.Store.Type == config.StoreRedis {
		logger.Debug(ctx, "~~ connecting redis")
		dep.redis, err = NewRedisConnMaker(ctx, conf.Redis)
		if err != nil {
			return
		}
	}

	logger.Debug(ctx, "~~ preparing repositories")
	dep.repos, err = SetupRepositories(ctx, conf, dep.redis)
	if err != nil {
		return
	}

	var publisher campaignsvc.Publisher
	if !conf.Transport.Websocket.Disable {
		dep.hub = wshub.New(conf.Transport.Websocket.Buffer)
		publisher = dep.hub
	}

	logger.Debug(ctx, "~~ preparing services")
	dep.services, err = SetupServices(ctx, conf, dep.repos, publisher)
	if err != nil {
		return
	}

	return
}

func (a *DefaultContainerImpl) Repositories() Repositories {
	return a.repos
}

func (a *DefaultContainerImpl) Services() Services {
	return a.services
}

// Hub is nil when websocket is disabled.
func (a *DefaultContainerImpl) Hub() *wshub.Hub {
	return a.hub
}

// Close will close all dependencies, services first so queued batches can still save.
func (a *DefaultContainerImpl) Close() error {
	if a == nil {
		return nil
	}

	var err error
	if a.services != nil {
		if _err := a.services.Close(a.ctx); _err != nil {
			err = multierr.Append(err, fmt.Errorf("close services error: %w", _err))
		}
	}

	if a.hub != nil {
		if _err := a.hub.Close(); _err != nil {
			err = multierr.Append(err, fmt.Errorf("close websocket hub error: %w", _err))
		}
	}

	if a.repos != nil {
		if _err := a.repos.Close(); _err != nil {
			err = multierr.Append(err, _err)
		}
	}

	if a.redis != nil {
		if _err := a.redis.Close(); _err != nil {
			err = multierr.Append(err, fmt.Errorf("close redis error: %w", _err))
		}
	}

	return err
}
