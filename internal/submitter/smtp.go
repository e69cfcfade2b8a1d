package submitter

import (
	"context"
	"fmt"
	"time"

	"github.com/yusufsyaifudin/bulkmail/pkg/csvrecord"
	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
	"github.com/yusufsyaifudin/bulkmail/pkg/mailclient"
	"github.com/yusufsyaifudin/bulkmail/pkg/placeholder"
	"github.com/yusufsyaifudin/bulkmail/pkg/tracer"
	"github.com/yusufsyaifudin/bulkmail/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

type SMTPConfig struct {
	Mailer     mailclient.ClientSmtpManager `validate:"required"`
	ServerHost string                       `validate:"required"`
	ServerPort int                          `validate:"required,min=1,max=65535"`
	TLSMode    string                       `validate:"omitempty,oneof=starttls tls none"`

	// Greeting is prepended and Signature appended to every body, both may use {field} tokens.
	// Signature tokens are filled from the sender record.
	Greeting  string
	Signature string

	// PauseBetween waits between two messages of the same sender.
	PauseBetween time.Duration `validate:"min=0"`
}

// SMTP renders every message locally and sends it with the sender's own account.
type SMTP struct {
	Config SMTPConfig
	now    func() time.Time
}

var _ Submitter = (*SMTP)(nil)

func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	err := validator.Validate(cfg)
	if err != nil {
		err = fmt.Errorf("smtp submitter config: %w", err)
		return nil, err
	}

	return &SMTP{Config: cfg, now: time.Now}, nil
}

func (s *SMTP) credential(sender csvrecord.Record) mailclient.Credential {
	return mailclient.Credential{
		ServerHost: s.Config.ServerHost,
		ServerPort: s.Config.ServerPort,
		TLSMode:    s.Config.TLSMode,
		Username:   sender.Email(),
		Password:   sender.Password(),
	}
}

// Message renders the email b.Sender sends to recipient.
func (s *SMTP) Message(b Batch, recipient csvrecord.Record) mailclient.Message {
	body := placeholder.Render(s.Config.Greeting, recipient) +
		placeholder.Render(b.Body, recipient) +
		placeholder.Render(s.Config.Signature, b.Sender)

	return mailclient.Message{
		FromAddr: b.Sender.Email(),
		FromName: b.Sender.Name(),
		ToAddr:   recipient.Email(),
		ToName:   recipient.Name(),
		Subject:  placeholder.Render(b.Subject, recipient),
		Body:     body,
	}
}

func (s *SMTP) Submit(ctx context.Context, b Batch) (report Report, err error) {
	var span trace.Span
	ctx, span = tracer.StartSpan(ctx, "submitter.SMTP.Submit")
	defer span.End()

	client, err := s.Config.Mailer.Get(ctx, s.credential(b.Sender))
	if err != nil {
		err = fmt.Errorf("smtp client for %s: %w", b.Sender.Email(), err)
		return
	}

	report = Report{Sender: b.Sender, Results: make([]Result, 0, len(b.Recipients))}
	for i, r := range b.Recipients {
		if i > 0 && s.Config.PauseBetween > 0 {
			select {
			case <-ctx.Done():
				err = ctx.Err()
				return
			case <-time.After(s.Config.PauseBetween):
			}
		}

		t0 := s.now()
		_err := client.Send(ctx, s.Message(b, r))
		res := Result{
			Recipient: r,
			Status:    ledger.StatusSent,
			TimeTaken: s.now().Sub(t0),
		}

		if _err != nil {
			res.Status = ledger.StatusFailed
			res.Detail = _err.Error()
			logger.Error(ctx, "smtp send failed",
				logger.KV("sender", b.Sender.Email()),
				logger.KV("recipient", r.Email()),
				logger.KV("error", _err),
			)
		}

		report.Results = append(report.Results, res)
	}

	return
}
