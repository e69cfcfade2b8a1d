package campaignsvc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yusufsyaifudin/bulkmail/internal/storage/campaignrepo"
	"github.com/yusufsyaifudin/bulkmail/internal/storage/historyrepo"
	"github.com/yusufsyaifudin/bulkmail/internal/submitter"
	"github.com/yusufsyaifudin/bulkmail/pkg/batch"
	"github.com/yusufsyaifudin/bulkmail/pkg/csvrecord"
	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
	"github.com/yusufsyaifudin/bulkmail/pkg/placeholder"
	"github.com/yusufsyaifudin/bulkmail/pkg/progress"
	"github.com/yusufsyaifudin/bulkmail/pkg/tracer"
	"github.com/yusufsyaifudin/bulkmail/pkg/uid"
	"github.com/yusufsyaifudin/bulkmail/pkg/validator"
	"github.com/yusufsyaifudin/bulkmail/pkg/worker"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultQuota is the recipients per sender used when the form leaves it out.
	DefaultQuota = 20

	PreviewLimit = 3

	DefaultMaxInFlight = 4
)

var (
	keepSender    = csvrecord.RequireFields(csvrecord.FieldName, csvrecord.FieldEmail, csvrecord.FieldPassword)
	keepRecipient = csvrecord.RequireFields(csvrecord.FieldName, csvrecord.FieldEmail)
)

type DefaultServiceConfig struct {
	Repo      campaignrepo.Repo   `validate:"required"`
	History   historyrepo.Repo    `validate:"required"`
	Submitter submitter.Submitter `validate:"required"`
	Worker    worker.Service      `validate:"required"`
	UIDGen    uid.UID             `validate:"required"`

	// Publisher is optional, nil drops every event.
	Publisher Publisher

	// PerItemEstimate drives the progress estimate, default progress.DefaultPerItem.
	PerItemEstimate time.Duration `validate:"min=0"`

	// MaxInFlight bounds concurrent Submitter calls, default DefaultMaxInFlight.
	MaxInFlight int64 `validate:"min=0"`

	// Now is used for campaign timestamps, default time.Now.
	Now func() time.Time
}

type DefaultService struct {
	Config DefaultServiceConfig

	sem    *semaphore.Weighted
	jobSeq uint64

	mu   sync.Mutex
	runs map[string]*run
}

var _ Service = (*DefaultService)(nil)

func New(dep DefaultServiceConfig) (*DefaultService, error) {
	if err := validator.Validate(dep); err != nil {
		return nil, err
	}

	if dep.PerItemEstimate == 0 {
		dep.PerItemEstimate = progress.DefaultPerItem
	}

	if dep.MaxInFlight == 0 {
		dep.MaxInFlight = DefaultMaxInFlight
	}

	if dep.Now == nil {
		dep.Now = time.Now
	}

	return &DefaultService{
		Config: dep,
		sem:    semaphore.NewWeighted(dep.MaxInFlight),
		runs:   make(map[string]*run),
	}, nil
}

type planned struct {
	senders           []csvrecord.Record
	recipients        []csvrecord.Record
	skippedSenders    int
	skippedRecipients int
	assignment        batch.Assignment
	required          int
	warnings          []string
}

// plan parses both files and assigns recipients. It has no side effects.
func plan(senderFile, receiverFile []byte, quota int) (p planned, err error) {
	if quota <= 0 {
		err = fmt.Errorf("%w: got %d", batch.ErrInvalidQuota, quota)
		return
	}

	senderRows, err := csvrecord.ReadCSV(bytes.NewReader(senderFile), csvrecord.ReadOption{Header: true})
	if err != nil {
		err = fmt.Errorf("%w: sender file: %s", ErrInvalidCSV, err)
		return
	}

	receiverRows, err := csvrecord.ReadCSV(bytes.NewReader(receiverFile), csvrecord.ReadOption{Header: true})
	if err != nil {
		err = fmt.Errorf("%w: receiver file: %s", ErrInvalidCSV, err)
		return
	}

	p.senders = csvrecord.Normalize(senderRows, keepSender)
	p.recipients = csvrecord.Normalize(receiverRows, keepRecipient)
	p.skippedSenders = len(senderRows) - len(p.senders)
	p.skippedRecipients = len(receiverRows) - len(p.recipients)

	p.required, err = batch.RequiredSenderCount(len(p.recipients), quota)
	if err != nil {
		return
	}

	p.assignment, err = batch.Assign(p.senders, p.recipients, quota)
	if err != nil {
		return
	}

	if p.skippedSenders > 0 {
		p.warnings = append(p.warnings, fmt.Sprintf("%d sender rows skipped: name, email and password are required", p.skippedSenders))
	}

	if p.skippedRecipients > 0 {
		p.warnings = append(p.warnings, fmt.Sprintf("%d receiver rows skipped: name and email are required", p.skippedRecipients))
	}

	if p.assignment.UnassignedCount > 0 {
		p.warnings = append(p.warnings, fmt.Sprintf("%d recipients have no sender: %d senders required, %d given",
			p.assignment.UnassignedCount, p.required, len(p.senders)))
	}

	return
}

func (d *DefaultService) Plan(ctx context.Context, input InputPlan) (out OutPlan, err error) {
	var span trace.Span
	ctx, span = tracer.StartSpan(ctx, "campaignsvc.Plan")
	defer span.End()

	if input.RecipientsPerSender <= 0 {
		err = fmt.Errorf("%w: got %d", batch.ErrInvalidQuota, input.RecipientsPerSender)
		return
	}

	err = validator.Validate(input)
	if err != nil {
		err = &ValidationError{Err: err}
		return
	}

	p, err := plan(input.SenderFile, input.ReceiverFile, input.RecipientsPerSender)
	if err != nil {
		return
	}

	batches := make([]BatchSummary, 0, len(p.assignment.Batches))
	for _, b := range p.assignment.Batches {
		batches = append(batches, BatchSummary{
			SenderName:     b.Sender.Name(),
			SenderEmail:    b.Sender.Email(),
			RecipientCount: len(b.Recipients),
		})
	}

	preview := placeholder.Preview(input.Subject, input.Body, p.recipients, PreviewLimit)
	warnings := p.warnings
	for _, r := range preview {
		if len(r.Missing) > 0 {
			warnings = append(warnings, fmt.Sprintf("recipient %s has no value for: %s",
				r.Recipient.Email(), strings.Join(r.Missing, ", ")))
		}
	}

	tokens := placeholder.Tokens(input.Subject + "\n" + input.Body)

	logger.Debug(ctx, "campaign planned",
		logger.KV("senders", len(p.senders)),
		logger.KV("recipients", len(p.recipients)),
		logger.KV("unassigned", p.assignment.UnassignedCount),
	)

	out = OutPlan{
		SenderCount:       len(p.senders),
		SkippedSenders:    p.skippedSenders,
		RecipientCount:    len(p.recipients),
		SkippedRecipients: p.skippedRecipients,
		RequiredSenders:   p.required,
		UnassignedCount:   p.assignment.UnassignedCount,
		Batches:           batches,
		Tokens:            tokens,
		Preview:           preview,
		Warnings:          warnings,
	}
	return
}

func (d *DefaultService) Submit(ctx context.Context, input InputSubmit) (out OutSubmit, err error) {
	var span trace.Span
	ctx, span = tracer.StartSpan(ctx, "campaignsvc.Submit")
	defer span.End()

	if input.RecipientsPerSender <= 0 {
		err = fmt.Errorf("%w: got %d", batch.ErrInvalidQuota, input.RecipientsPerSender)
		return
	}

	err = validator.Validate(input)
	if err != nil {
		err = &ValidationError{Err: err}
		return
	}

	p, err := plan(input.SenderFile, input.ReceiverFile, input.RecipientsPerSender)
	if err != nil {
		return
	}

	if len(p.senders) == 0 {
		err = fmt.Errorf("%w: sender file has no row with name, email and password", ErrValidation)
		return
	}

	if len(p.recipients) == 0 {
		err = fmt.Errorf("%w: receiver file has no row with name and email", ErrValidation)
		return
	}

	id, err := uid.NextString(d.Config.UIDGen)
	if err != nil {
		return
	}

	now := d.Config.Now().UTC()
	c := &campaignrepo.Campaign{
		ID:         id,
		Subject:    input.Subject,
		Body:       input.Body,
		Quota:      input.RecipientsPerSender,
		UserName:   input.UserName,
		UserEmail:  strings.ToLower(strings.TrimSpace(input.UserEmail)),
		Senders:    p.senders,
		Recipients: p.recipients,
		Assignment: p.assignment,
		Ledger:     ledger.New(ledger.WithClock(d.Config.Now)),
		CreatedAt:  now,
		StartedAt:  now,
	}
	c.Ledger.Initialize(p.assignment)

	r := &run{
		campaign:    c,
		estimator:   progress.New(p.assignment.AssignedCount(), d.Config.PerItemEstimate),
		refs:        1,
		dispatching: true,
	}

	_, err = d.Config.Repo.Save(ctx, campaignrepo.InputSave{Campaign: c})
	if err != nil {
		err = fmt.Errorf("save new campaign: %w", err)
		return
	}

	d.mu.Lock()
	d.runs[id] = r
	d.mu.Unlock()

	logger.Info(ctx, "campaign submitted",
		logger.KV("campaign_id", id),
		logger.KV("batches", p.assignment.SenderCount()),
		logger.KV("recipients", p.assignment.AssignedCount()),
	)

	d.dispatch(ctx, r, input.Sync)

	snap := c.Ledger.Snapshot()
	out = OutSubmit{
		Campaign: r.view(),
		Entries:  sanitize(snap.Entries),
		Summary:  snap.Summary(),
		Warnings: p.warnings,
	}
	return
}

func (d *DefaultService) Resubmit(ctx context.Context, input InputResubmit) (out OutSubmit, err error) {
	var span trace.Span
	ctx, span = tracer.StartSpan(ctx, "campaignsvc.Resubmit")
	defer span.End()

	err = validator.Validate(input)
	if err != nil {
		err = &ValidationError{Err: err}
		return
	}

	r, err := d.acquire(ctx, input.CampaignID)
	if err != nil {
		return
	}

	r.mu.Lock()
	if r.dispatching {
		r.mu.Unlock()
		d.release(r)
		err = fmt.Errorf("%w: %s", ErrCampaignRunning, input.CampaignID)
		return
	}

	r.dispatching = true
	r.campaign.Ledger.Initialize(r.campaign.Assignment)
	r.campaign.StartedAt = d.Config.Now().UTC()
	r.campaign.FinishedAt = time.Time{}
	r.estimator = progress.New(r.campaign.Assignment.AssignedCount(), d.Config.PerItemEstimate)
	r.mu.Unlock()

	d.save(ctx, r)

	logger.Info(ctx, "campaign resubmitted", logger.KV("campaign_id", input.CampaignID))

	// the acquired reference is released when the dispatch finishes
	d.dispatch(ctx, r, input.Sync)

	snap := r.campaign.Ledger.Snapshot()
	out = OutSubmit{
		Campaign: r.view(),
		Entries:  sanitize(snap.Entries),
		Summary:  snap.Summary(),
	}
	return
}

func (d *DefaultService) Get(ctx context.Context, input InputGet) (out OutGet, err error) {
	var span trace.Span
	ctx, span = tracer.StartSpan(ctx, "campaignsvc.Get")
	defer span.End()

	err = validator.Validate(input)
	if err != nil {
		err = &ValidationError{Err: err}
		return
	}

	d.mu.Lock()
	r, active := d.runs[input.CampaignID]
	d.mu.Unlock()

	if !active {
		var c *campaignrepo.Campaign
		c, err = d.load(ctx, input.CampaignID)
		if err != nil {
			return
		}

		r = &run{campaign: c}
	}

	snap := r.campaign.Ledger.Snapshot()
	out = OutGet{
		Campaign: r.view(),
		Entries:  sanitize(snap.Entries),
		Summary:  snap.Summary(),
		Progress: d.progressOf(r),
	}
	return
}

func (d *DefaultService) Retry(ctx context.Context, input InputRetry) (out OutRetry, err error) {
	var span trace.Span
	ctx, span = tracer.StartSpan(ctx, "campaignsvc.Retry")
	defer span.End()

	err = validator.Validate(input)
	if err != nil {
		err = &ValidationError{Err: err}
		return
	}

	r, err := d.acquire(ctx, input.CampaignID)
	if err != nil {
		return
	}

	defer d.release(r)

	key := ledger.NewKey(input.SenderEmail, input.RecipientEmail)
	r.mu.Lock()
	dispatching := r.dispatching
	r.mu.Unlock()

	if entry, ok := r.campaign.Ledger.Snapshot().Get(key); ok && dispatching && entry.Status == ledger.StatusPending {
		err = fmt.Errorf("%w: %s is queued", ErrRetryInFlight, key)
		return
	}

	payload, err := r.campaign.Ledger.TryRetry(key)
	if errors.Is(err, ledger.ErrInFlight) {
		err = fmt.Errorf("%w: %s", ErrRetryInFlight, key)
		return
	}

	if err != nil {
		return
	}

	d.publishEntries(ctx, r, []ledger.Key{key})
	d.save(ctx, r)

	logger.Info(ctx, "retrying delivery",
		logger.KV("campaign_id", input.CampaignID),
		logger.KV("key", key.String()),
	)

	job := d.newJob(ctx, r, submitter.Batch{
		Sender:     payload.Sender,
		Recipients: []csvrecord.Record{payload.Recipient},
		Subject:    r.campaign.Subject,
		Body:       r.campaign.Body,
	}, true, nil)

	d.Config.Worker.RunJob(job)

	snap := r.campaign.Ledger.Snapshot()
	entry, _ := snap.Get(key)
	out = OutRetry{
		Entry:   sanitizeEntry(entry),
		Summary: snap.Summary(),
	}
	return
}

func (d *DefaultService) History(ctx context.Context, input InputHistory) (out OutHistory, err error) {
	var span trace.Span
	ctx, span = tracer.StartSpan(ctx, "campaignsvc.History")
	defer span.End()

	err = validator.Validate(input)
	if err != nil {
		err = &ValidationError{Err: err}
		return
	}

	list, err := d.Config.History.ListByCampaign(ctx, historyrepo.InputListByCampaign{
		CampaignID: input.CampaignID,
		Limit:      input.Limit,
	})
	if err != nil {
		err = fmt.Errorf("list history of campaign %s: %w", input.CampaignID, err)
		return
	}

	out = OutHistory{Records: list.Records}
	return
}

func (d *DefaultService) RequiredSenders(ctx context.Context, input InputRequiredSenders) (out OutRequiredSenders, err error) {
	err = validator.Validate(input)
	if err != nil {
		err = &ValidationError{Err: err}
		return
	}

	n, err := batch.RequiredSenderCount(input.Recipients, input.Quota)
	if err != nil {
		return
	}

	out = OutRequiredSenders{Count: n}
	return
}

func (d *DefaultService) load(ctx context.Context, id string) (*campaignrepo.Campaign, error) {
	got, err := d.Config.Repo.Get(ctx, campaignrepo.InputGet{ID: id})
	if errors.Is(err, campaignrepo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCampaignNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("load campaign %s: %w", id, err)
	}

	return got.Campaign, nil
}

// acquire returns the live run of a campaign, loading it from the repo when nobody holds it.
// Every acquire must be paired with release.
func (d *DefaultService) acquire(ctx context.Context, id string) (*run, error) {
	d.mu.Lock()
	if r, ok := d.runs[id]; ok {
		r.refs++
		d.mu.Unlock()
		return r, nil
	}
	d.mu.Unlock()

	c, err := d.load(ctx, id)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.runs[id]; ok {
		r.refs++
		return r, nil
	}

	r := &run{campaign: c, refs: 1}
	d.runs[id] = r
	return r, nil
}

func (d *DefaultService) release(r *run) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r.refs--
	if r.refs <= 0 {
		delete(d.runs, r.campaign.ID)
	}
}

func (d *DefaultService) save(ctx context.Context, r *run) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := d.Config.Repo.Save(ctx, campaignrepo.InputSave{Campaign: r.campaign})
	if err != nil {
		logger.Error(ctx, "save campaign error",
			logger.KV("campaign_id", r.campaign.ID),
			logger.KV("error", err),
		)
	}
}

func (d *DefaultService) progressOf(r *run) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.estimator != nil {
		return r.estimator.Percent(d.Config.Now())
	}

	switch {
	case !r.campaign.FinishedAt.IsZero():
		return 100
	case r.campaign.StartedAt.IsZero():
		return 0
	}

	est := progress.New(r.campaign.Assignment.AssignedCount(), d.Config.PerItemEstimate)
	est.Start = r.campaign.StartedAt
	return est.Percent(d.Config.Now())
}

// dispatch queues one job per batch. When wait is false it returns before any job is queued.
func (d *DefaultService) dispatch(ctx context.Context, r *run, wait bool) {
	ctx = detach(ctx)

	queue := func() {
		var wg sync.WaitGroup
		for _, b := range r.campaign.Assignment.Batches {
			sb := submitter.Batch{
				Sender:     b.Sender,
				Recipients: b.Recipients,
				Subject:    r.campaign.Subject,
				Body:       r.campaign.Body,
			}

			wg.Add(1)
			job := d.newJob(ctx, r, sb, false, wg.Done)
			if err := d.Config.Worker.AddJob(job); err != nil {
				logger.Error(ctx, "cannot queue batch",
					logger.KV("campaign_id", r.campaign.ID),
					logger.KV("sender", sb.Sender.Email()),
					logger.KV("error", err),
				)

				keys, _ := submitter.FailAll(r.campaign.Ledger, sb, err)
				d.record(ctx, r, keys)
				wg.Done()
			}
		}

		wg.Wait()
		d.finish(ctx, r)
	}

	if wait {
		queue()
		return
	}

	go queue()
}

func (d *DefaultService) finish(ctx context.Context, r *run) {
	r.mu.Lock()
	r.dispatching = false
	r.campaign.FinishedAt = d.Config.Now().UTC()
	if r.estimator != nil {
		r.estimator.Complete()
	}
	r.mu.Unlock()

	d.save(ctx, r)

	summary := r.campaign.Ledger.Snapshot().Summary()
	logger.Info(ctx, "campaign dispatch finished",
		logger.KV("campaign_id", r.campaign.ID),
		logger.KV("sent", summary.Sent),
		logger.KV("failed", summary.Failed),
	)

	d.publish(ctx, Event{
		CampaignID: r.campaign.ID,
		Type:       EventFinished,
		Summary:    summary,
		Progress:   100,
	})

	d.release(r)
}

// record appends terminal entries of keys to the history and broadcasts them.
func (d *DefaultService) record(ctx context.Context, r *run, keys []ledger.Key) {
	if len(keys) == 0 {
		return
	}

	snap := r.campaign.Ledger.Snapshot()
	records := make([]historyrepo.Record, 0, len(keys))
	for _, key := range keys {
		entry, ok := snap.Get(key)
		if !ok || !entry.Status.Terminal() {
			continue
		}

		records = append(records, historyrepo.Record{
			CampaignID:     r.campaign.ID,
			SenderEmail:    entry.Key.SenderEmail,
			RecipientEmail: entry.Key.RecipientEmail,
			Status:         string(entry.Status),
			Detail:         entry.Detail,
			DurationMs:     entry.Duration.Milliseconds(),
			CreatedAt:      entry.UpdatedAt.UTC(),
		})
	}

	if len(records) > 0 {
		_, err := d.Config.History.Append(ctx, historyrepo.InputAppend{Records: records})
		if err != nil {
			logger.Error(ctx, "append delivery history error",
				logger.KV("campaign_id", r.campaign.ID),
				logger.KV("error", err),
			)
		}
	}

	d.publishEntries(ctx, r, keys)
}

func (d *DefaultService) publishEntries(ctx context.Context, r *run, keys []ledger.Key) {
	if d.Config.Publisher == nil || len(keys) == 0 {
		return
	}

	snap := r.campaign.Ledger.Snapshot()
	summary := snap.Summary()
	percent := d.progressOf(r)
	for _, key := range keys {
		entry, ok := snap.Get(key)
		if !ok {
			continue
		}

		entry = sanitizeEntry(entry)
		d.publish(ctx, Event{
			CampaignID: r.campaign.ID,
			Type:       EventEntry,
			Entry:      &entry,
			Summary:    summary,
			Progress:   percent,
		})
	}
}

func (d *DefaultService) publish(ctx context.Context, ev Event) {
	if d.Config.Publisher == nil {
		return
	}

	d.Config.Publisher.Publish(ctx, ev)
}

func (d *DefaultService) newJob(ctx context.Context, r *run, b submitter.Batch, retry bool, done func()) *batchJob {
	return &batchJob{
		id:    atomic.AddUint64(&d.jobSeq, 1),
		ctx:   ctx,
		svc:   d,
		run:   r,
		batch: b,
		retry: retry,
		done:  done,
	}
}

// detach keeps the log tracer and trace span of ctx but not its cancellation.
func detach(ctx context.Context) context.Context {
	out := logger.Inject(context.Background(), logger.MustExtract(ctx))
	return trace.ContextWithSpanContext(out, trace.SpanContextFromContext(ctx))
}

func sanitize(entries []ledger.Entry) []ledger.Entry {
	out := make([]ledger.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, sanitizeEntry(e))
	}

	return out
}

func sanitizeEntry(e ledger.Entry) ledger.Entry {
	e.Sender = e.Sender.WithoutSecrets()
	e.Recipient = e.Recipient.WithoutSecrets()
	return e
}
