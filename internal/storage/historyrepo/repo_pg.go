package historyrepo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/yusufsyaifudin/bulkmail/pkg/tracer"
	"github.com/yusufsyaifudin/bulkmail/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

const DefaultListLimit = 1000

type RepoPostgresConfig struct {
	Connection sqlx.ExtContext `validate:"required"`
}

type RepoPostgres struct {
	Config RepoPostgresConfig
}

var _ Repo = (*RepoPostgres)(nil)

// Postgres return repo interface which implements using PgSQL
func Postgres(conf RepoPostgresConfig) (service *RepoPostgres, err error) {
	err = validator.Validate(conf)
	if err != nil {
		return nil, err
	}

	service = &RepoPostgres{
		Config: conf,
	}
	return
}

func (p *RepoPostgres) Migrate(ctx context.Context) error {
	for _, q := range []string{sqlCreateTable, sqlCreateIndex} {
		if _, err := p.Config.Connection.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate delivery_history: %w", err)
		}
	}

	return nil
}

func (p *RepoPostgres) Append(ctx context.Context, in InputAppend) (out OutAppend, err error) {
	var span trace.Span
	ctx, span = tracer.StartSpan(ctx, "historyrepo.Append")
	defer span.End()

	err = validator.Validate(in)
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrValidation, err)
		return
	}

	inserted := make([]Record, 0, len(in.Records))
	for _, r := range in.Records {
		row := Record{}
		err = sqlx.GetContext(ctx, p.Config.Connection, &row, sqlInsert,
			r.CampaignID,
			strings.ToLower(r.SenderEmail),
			strings.ToLower(r.RecipientEmail),
			r.Status,
			r.Detail,
			r.DurationMs,
			r.CreatedAt,
		)
		if err != nil {
			err = fmt.Errorf("insert delivery history: %w", err)
			return
		}

		inserted = append(inserted, row)
	}

	out = OutAppend{Records: inserted}
	return
}

func (p *RepoPostgres) ListByCampaign(ctx context.Context, in InputListByCampaign) (out OutListByCampaign, err error) {
	var span trace.Span
	ctx, span = tracer.StartSpan(ctx, "historyrepo.ListByCampaign")
	defer span.End()

	err = validator.Validate(in)
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrValidation, err)
		return
	}

	limit := in.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}

	records := make([]Record, 0)
	err = sqlx.SelectContext(ctx, p.Config.Connection, &records, sqlListByCampaign, in.CampaignID, limit)
	if err != nil {
		err = fmt.Errorf("list delivery history: %w", err)
		return
	}

	out = OutListByCampaign{Records: records}
	return
}
