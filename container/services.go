package container

import (
	"context"
	"fmt"

	"github.com/yusufsyaifudin/bulkmail/config"
	"github.com/yusufsyaifudin/bulkmail/internal/submitter"
	"github.com/yusufsyaifudin/bulkmail/internal/svc/campaignsvc"
	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
	"github.com/yusufsyaifudin/bulkmail/pkg/mailclient"
	"github.com/yusufsyaifudin/bulkmail/pkg/uid"
	"github.com/yusufsyaifudin/bulkmail/pkg/worker"
)

type Services interface {
	UIDGen() uid.UID
	Campaign() campaignsvc.Service
}

type ServicesImpl struct {
	uidGen   uid.UID
	worker   *worker.Worker
	campaign campaignsvc.Service
	closer   []Closer
}

var _ Services = (*ServicesImpl)(nil)

// SetupServices prepares the campaign service on top of repos. publisher may be nil.
func SetupServices(ctx context.Context, conf *config.Config, repos Repositories, publisher campaignsvc.Publisher) (svc *ServicesImpl, err error) {
	if repos == nil {
		err = fmt.Errorf("nil repositories on services preparation")
		return
	}

	uidGen, err := uid.NewSonyflake(uid.DefaultStartTime)
	if err != nil {
		return
	}

	sender, closer, err := NewSubmitter(conf.Submitter)
	if err != nil {
		err = fmt.Errorf("services cannot prepare submitter: %w", err)
		return
	}

	svc = &ServicesImpl{
		uidGen: uidGen,
		worker: worker.NewWorker(conf.Worker.Num, conf.Worker.MaxQueue),
	}

	if closer != nil {
		svc.closer = append(svc.closer, closer)
	}

	// worker drains before the smtp pool closes
	svc.closer = append(svc.closer, NewNamedCloser("worker", closerFunc(func() error {
		svc.worker.Done()
		return nil
	})))

	svc.campaign, err = campaignsvc.New(campaignsvc.DefaultServiceConfig{
		Repo:            repos.Campaign(),
		History:         repos.History(),
		Submitter:       sender,
		Worker:          svc.worker,
		UIDGen:          uidGen,
		Publisher:       publisher,
		PerItemEstimate: conf.Campaign.PerItemEstimate,
		MaxInFlight:     conf.Campaign.MaxInFlight,
	})
	if err != nil {
		err = fmt.Errorf("services cannot prepare campaign service: %w", err)
		_ = svc.Close(ctx)
		svc = nil
		return
	}

	logger.Info(ctx, "services ready", logger.KV("submitter", conf.Submitter.Type))
	return svc, nil
}

// NewSubmitter picks the delivery backend. The returned Closer is nil when nothing needs closing.
func NewSubmitter(conf config.Submitter) (s submitter.Submitter, closer Closer, err error) {
	switch conf.Type {
	case config.SubmitterHTTP, "":
		s, err = submitter.NewHTTP(submitter.HTTPConfig{
			Endpoint: conf.Endpoint,
			Timeout:  conf.Timeout,
		})
		return

	case config.SubmitterSMTP:
		mailer := mailclient.NewClientSmtpManager()
		s, err = submitter.NewSMTP(submitter.SMTPConfig{
			Mailer:       mailer,
			ServerHost:   conf.SMTP.Host,
			ServerPort:   conf.SMTP.Port,
			TLSMode:      conf.SMTP.TLSMode,
			Greeting:     conf.SMTP.Greeting,
			Signature:    conf.SMTP.Signature,
			PauseBetween: conf.SMTP.PauseBetween,
		})
		if err != nil {
			_ = mailer.Close()
			return
		}

		closer = NewNamedCloser("smtp clients", mailer)
		return

	case config.SubmitterNoop:
		s = &submitter.Noop{Delay: conf.NoopDelay}
		return

	default:
		err = fmt.Errorf("unknown submitter type %s", conf.Type)
		return
	}
}

func (s *ServicesImpl) UIDGen() uid.UID {
	return s.uidGen
}

func (s *ServicesImpl) Campaign() campaignsvc.Service {
	return s.campaign
}

// Close waits for queued batches, then releases the submitter.
func (s *ServicesImpl) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}

	return closeAll(ctx, s.closer)
}
