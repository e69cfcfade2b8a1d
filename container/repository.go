package container

import (
	"context"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/yusufsyaifudin/bulkmail/config"
	"github.com/yusufsyaifudin/bulkmail/internal/storage/campaignrepo"
	"github.com/yusufsyaifudin/bulkmail/internal/storage/historyrepo"
	"github.com/yusufsyaifudin/bulkmail/pkg/cache"
	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
	"github.com/yusufsyaifudin/bulkmail/pkg/multidb"
	"go.uber.org/multierr"
)

// Repositories is an abstraction layer to list down all repositories.
type Repositories interface {
	io.Closer

	Campaign() campaignrepo.Repo
	History() historyrepo.Repo
}

// RepositoryImpl the real implementation of Repositories
type RepositoryImpl struct {
	campaign  campaignrepo.Repo
	history   historyrepo.Repo
	dbSqlConn multidb.MultiDB // nil when no database is configured
}

// Ensure that RepositoryImpl implements Repositories
var _ Repositories = (*RepositoryImpl)(nil)

// SetupRepositories builds the campaign store and the history log from conf.
// redisConn may be nil when the store is not redis.
func SetupRepositories(ctx context.Context, conf *config.Config, redisConn *RedisConnMaker) (repo *RepositoryImpl, err error) {
	repo = &RepositoryImpl{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, repo.Close())
			repo = nil
		}
	}()

	store, err := newStore(conf.Store, redisConn)
	if err != nil {
		err = fmt.Errorf("campaign store: %w", err)
		return
	}

	repo.campaign, err = campaignrepo.NewRepoCache(campaignrepo.RepoCacheConfig{
		Cache:      store,
		DefaultTTL: conf.Store.TTL,
	})
	if err != nil {
		return
	}

	if conf.History.DBLabel == "" {
		logger.Info(ctx, "history is kept in memory")
		repo.history = historyrepo.NewInMemory(conf.History.MaxInMemory)
		return
	}

	if len(conf.DatabaseResources) > 0 {
		repo.dbSqlConn, err = multidb.NewSqlDbConnMaker(multidb.SqlDbConnMakerConfig{
			Config: conf.DatabaseResources,
		})
		if err != nil {
			return
		}
	}

	repo.history, err = historyRepo(conf.DatabaseResources, repo.dbSqlConn, conf.History.DBLabel)
	if err != nil {
		return
	}

	if conf.History.AutoMigrate {
		if err = repo.history.Migrate(ctx); err != nil {
			err = fmt.Errorf("migrate history: %w", err)
			return
		}
	}

	return
}

func newStore(conf config.Store, redisConn *RedisConnMaker) (cache.Cache, error) {
	switch conf.Type {
	case config.StoreInMemory, "":
		return cache.NewInMemory(cache.InMemoryConfig{MaxBytes: conf.MaxBytes})

	case config.StoreRedis:
		if redisConn == nil {
			return nil, fmt.Errorf("store type redis without redis connection")
		}

		client, err := redisConn.Get(conf.RedisKey)
		if err != nil {
			return nil, err
		}

		return cache.NewRedis(cache.RedisConfig{
			DB:        client,
			KeyPrefix: conf.KeyPrefix,
		})

	default:
		return nil, fmt.Errorf("unknown store type %s", conf.Type)
	}
}

func historyRepo(resources multidb.DatabaseResources, dbSqlConn multidb.MultiDB, dbLabel string) (repo historyrepo.Repo, err error) {
	repoConnInfo, ok := resources[dbLabel]
	if !ok || dbSqlConn == nil {
		err = fmt.Errorf("unknown database key %s on history", dbLabel)
		return
	}

	// for type postgres use sqlx
	switch repoConnInfo.Driver {
	case multidb.Postgres:
		var sqlConn *sqlx.DB
		sqlConn, err = dbSqlConn.GetSqlx(multidb.Postgres, dbLabel)
		if err != nil {
			return
		}

		repo, err = historyrepo.Postgres(historyrepo.RepoPostgresConfig{
			Connection: sqlConn,
		})
		return

	default:
		err = fmt.Errorf("not supported db driver '%s' on label '%s'", repoConnInfo.Driver, dbLabel)
		return
	}
}

func (r *RepositoryImpl) Campaign() campaignrepo.Repo {
	return r.campaign
}

func (r *RepositoryImpl) History() historyrepo.Repo {
	return r.history
}

// Close will close all dependencies.
func (r *RepositoryImpl) Close() error {
	if r == nil || r.dbSqlConn == nil {
		return nil
	}

	if err := r.dbSqlConn.Close(); err != nil {
		return fmt.Errorf("close db error: %w", err)
	}

	return nil
}
