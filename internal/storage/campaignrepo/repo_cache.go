package campaignrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yusufsyaifudin/bulkmail/pkg/cache"
	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
	"github.com/yusufsyaifudin/bulkmail/pkg/tracer"
	"github.com/yusufsyaifudin/bulkmail/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

const (
	keyPrefix  = "campaign:"
	DefaultTTL = 7 * 24 * time.Hour
)

type RepoCacheConfig struct {
	Cache cache.Cache `validate:"required"`

	// DefaultTTL is used when InputSave.TTL is zero.
	DefaultTTL time.Duration `validate:"min=0"`
}

// RepoCache stores each campaign as one JSON value in a cache.Cache.
type RepoCache struct {
	Config RepoCacheConfig
}

var _ Repo = (*RepoCache)(nil)

func NewRepoCache(cfg RepoCacheConfig) (*RepoCache, error) {
	err := validator.Validate(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultTTL
	}

	return &RepoCache{Config: cfg}, nil
}

func cacheKey(id string) string {
	return keyPrefix + strings.TrimSpace(id)
}

func (r *RepoCache) Save(ctx context.Context, in InputSave) (out OutSave, err error) {
	var span trace.Span
	ctx, span = tracer.StartSpan(ctx, "campaignrepo.Save")
	defer span.End()

	err = validator.Validate(in)
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrValidation, err)
		return
	}

	if in.Campaign.ID == "" {
		err = fmt.Errorf("%w: campaign id is empty", ErrValidation)
		return
	}

	ttl := in.TTL
	if ttl == 0 {
		ttl = r.Config.DefaultTTL
	}

	err = r.Config.Cache.SetExp(ctx, cacheKey(in.Campaign.ID), in.Campaign, ttl)
	if err != nil {
		err = fmt.Errorf("save campaign %s: %w", in.Campaign.ID, err)
		return
	}

	return
}

func (r *RepoCache) Get(ctx context.Context, in InputGet) (out OutGet, err error) {
	var span trace.Span
	ctx, span = tracer.StartSpan(ctx, "campaignrepo.Get")
	defer span.End()

	err = validator.Validate(in)
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrValidation, err)
		return
	}

	c := &Campaign{Ledger: ledger.New()}
	err = r.Config.Cache.GetAs(ctx, cacheKey(in.ID), c)
	if errors.Is(err, cache.ErrKeyNotExist) {
		err = fmt.Errorf("%w: %s", ErrNotFound, in.ID)
		return
	}

	if err != nil {
		err = fmt.Errorf("get campaign %s: %w", in.ID, err)
		return
	}

	if c.Ledger == nil {
		c.Ledger = ledger.New()
	}

	out = OutGet{Campaign: c}
	return
}

func (r *RepoCache) Delete(ctx context.Context, in InputDelete) (out OutDelete, err error) {
	err = validator.Validate(in)
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrValidation, err)
		return
	}

	err = r.Config.Cache.Delete(ctx, cacheKey(in.ID))
	if err != nil {
		err = fmt.Errorf("delete campaign %s: %w", in.ID, err)
		return
	}

	out = OutDelete{Success: true}
	return
}
