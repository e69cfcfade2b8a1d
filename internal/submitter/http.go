package submitter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/yusufsyaifudin/bulkmail/pkg/csvrecord"
	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
	"github.com/yusufsyaifudin/bulkmail/pkg/tracer"
	"github.com/yusufsyaifudin/bulkmail/pkg/validator"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultEndpoint = "http://127.0.0.1:8000/send_emails"
	DefaultTimeout  = 5 * time.Minute

	maxErrBody = 512
)

type senderPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sendRequest struct {
	Senders    []senderPayload    `json:"senders"`
	Recipients []csvrecord.Record `json:"recipients"`
	Subject    string             `json:"subject"`
	Body       string             `json:"body"`
}

type recipientResult struct {
	Recipient string `json:"recipient"`
	Status    string `json:"status"`
	TimeTaken string `json:"time_taken"`
}

type senderResult struct {
	Sender           string            `json:"sender"`
	Status           string            `json:"status"`
	Count            int               `json:"count"`
	TimeTaken        string            `json:"time_taken"`
	RecipientResults []recipientResult `json:"recipient_results"`
}

type sendResponse struct {
	Results []senderResult `json:"results"`
}

type HTTPConfig struct {
	Endpoint string        `validate:"required,url"`
	Timeout  time.Duration `validate:"min=0"`
	Client   *http.Client  `validate:"-"`
}

// HTTP posts each batch as JSON to a remote sending backend.
type HTTP struct {
	Config HTTPConfig
	client *http.Client
}

var _ Submitter = (*HTTP)(nil)

func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}

	err := validator.Validate(cfg)
	if err != nil {
		err = fmt.Errorf("http submitter config: %w", err)
		return nil, err
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &HTTP{Config: cfg, client: client}, nil
}

func (h *HTTP) Submit(ctx context.Context, b Batch) (report Report, err error) {
	var span trace.Span
	ctx, span = tracer.StartSpan(ctx, "submitter.HTTP.Submit")
	defer span.End()

	span.SetAttributes(
		attribute.String("sender", b.Sender.Email()),
		attribute.Int("recipients", len(b.Recipients)),
	)

	payload, err := json.Marshal(sendRequest{
		Senders: []senderPayload{{
			Name:     b.Sender.Name(),
			Email:    b.Sender.Email(),
			Password: b.Sender.Password(),
		}},
		Recipients: b.Recipients,
		Subject:    b.Subject,
		Body:       b.Body,
	})
	if err != nil {
		err = fmt.Errorf("marshal send request: %w", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		err = fmt.Errorf("build send request: %w", err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	t0 := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		err = fmt.Errorf("post %s: %w", h.Config.Endpoint, err)
		return
	}

	defer func() {
		if _err := resp.Body.Close(); _err != nil {
			logger.Warn(ctx, "close send response body", logger.KV("error", _err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		err = fmt.Errorf("send backend responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return
	}

	var out sendResponse
	err = json.NewDecoder(resp.Body).Decode(&out)
	if err != nil {
		err = fmt.Errorf("decode send response: %w", err)
		return
	}

	logger.Debug(ctx, "send backend responded",
		logger.KV("sender", b.Sender.Email()),
		logger.KV("elapsed", time.Since(t0).String()),
	)

	report = toReport(b, out)
	return
}

// toReport picks the result of b's sender and maps recipient emails back to the batch records.
func toReport(b Batch, resp sendResponse) Report {
	report := Report{Sender: b.Sender, Results: make([]Result, 0, len(b.Recipients))}

	var own *senderResult
	for i := range resp.Results {
		if strings.EqualFold(strings.TrimSpace(resp.Results[i].Sender), b.Sender.Email()) {
			own = &resp.Results[i]
			break
		}
	}

	if own == nil {
		return report
	}

	byEmail := make(map[string]csvrecord.Record, len(b.Recipients))
	for _, r := range b.Recipients {
		byEmail[r.Email()] = r
	}

	// the backend rejects a whole sender without per recipient results
	if len(own.RecipientResults) == 0 {
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(own.Status)), statusFailedPref) {
			return report
		}

		_, detail := parseStatus(own.Status)

		for _, r := range b.Recipients {
			report.Results = append(report.Results, Result{
				Recipient: r,
				Status:    ledger.StatusFailed,
				Detail:    detail,
				TimeTaken: parseTimeTaken(own.TimeTaken),
			})
		}

		return report
	}

	for _, rr := range own.RecipientResults {
		email := strings.ToLower(strings.TrimSpace(rr.Recipient))
		rec, ok := byEmail[email]
		if !ok {
			rec = csvrecord.New(map[string]string{csvrecord.FieldEmail: email})
		}

		status, detail := parseStatus(rr.Status)
		report.Results = append(report.Results, Result{
			Recipient: rec,
			Status:    status,
			Detail:    detail,
			TimeTaken: parseTimeTaken(rr.TimeTaken),
		})
	}

	return report
}
