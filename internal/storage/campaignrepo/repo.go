package campaignrepo

import (
	"context"
	"errors"
	"time"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("campaign not found")
)

// Repo persists campaigns by id.
type Repo interface {
	Save(ctx context.Context, in InputSave) (out OutSave, err error)
	Get(ctx context.Context, in InputGet) (out OutGet, err error)
	Delete(ctx context.Context, in InputDelete) (out OutDelete, err error)
}

type InputSave struct {
	Campaign *Campaign     `validate:"required"`
	TTL      time.Duration `validate:"min=0"`
}

type OutSave struct{}

type InputGet struct {
	ID string `validate:"required"`
}

type OutGet struct {
	Campaign *Campaign
}

type InputDelete struct {
	ID string `validate:"required"`
}

type OutDelete struct {
	Success bool
}
