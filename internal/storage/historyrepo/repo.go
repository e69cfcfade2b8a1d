package historyrepo

import (
	"context"
	"errors"
)

var (
	ErrValidation = errors.New("validation error")
)

// Repo is the delivery history of every campaign.
type Repo interface {
	Append(ctx context.Context, in InputAppend) (out OutAppend, err error)
	ListByCampaign(ctx context.Context, in InputListByCampaign) (out OutListByCampaign, err error)
	Migrate(ctx context.Context) error
}

type InputAppend struct {
	Records []Record `validate:"required,dive"`
}

type OutAppend struct {
	Records []Record
}

type InputListByCampaign struct {
	CampaignID string `validate:"required"`
	Limit      int64  `validate:"min=0"`
}

type OutListByCampaign struct {
	Records []Record
}
