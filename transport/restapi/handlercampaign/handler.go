package handlercampaign

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"
	"github.com/segmentio/encoding/json"
	"github.com/yusufsyaifudin/bulkmail/internal/svc/campaignsvc"
	"github.com/yusufsyaifudin/bulkmail/pkg/batch"
	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
	"github.com/yusufsyaifudin/bulkmail/pkg/logger"
	"github.com/yusufsyaifudin/bulkmail/pkg/respbuilder"
	"github.com/yusufsyaifudin/bulkmail/pkg/validator"
	"github.com/yusufsyaifudin/bulkmail/transport/restapi/wshub"
)

const (
	DefaultMaxUploadBytes = 10 << 20

	formOverheadBytes = 1 << 20

	fieldSenderFile   = "sender_file"
	fieldReceiverFile = "receiver_file"
)

// ErrFileTooLarge is returned when an uploaded CSV exceeds MaxUploadBytes.
var ErrFileTooLarge = errors.New("uploaded file is too large")

type HandlerConfig struct {
	CampaignService campaignsvc.Service `validate:"required"`

	// Hub serves the live event stream, nil disables the websocket route.
	Hub *wshub.Hub

	MaxUploadBytes int64 `validate:"min=0"`
}

type Handler struct {
	Config  HandlerConfig
	decoder *schema.Decoder
}

func NewHandler(conf HandlerConfig) (*Handler, error) {
	err := validator.Validate(conf)
	if err != nil {
		return nil, err
	}

	if conf.MaxUploadBytes == 0 {
		conf.MaxUploadBytes = DefaultMaxUploadBytes
	}

	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)

	return &Handler{Config: conf, decoder: dec}, nil
}

// errKind maps service errors to response kinds.
func errKind(err error) respbuilder.ErrKind {
	switch {
	case errors.Is(err, batch.ErrInvalidQuota):
		return respbuilder.ErrInvalidQuota
	case errors.Is(err, ledger.ErrUnknownKey):
		return respbuilder.ErrUnknownKey
	case errors.Is(err, campaignsvc.ErrCampaignNotFound):
		return respbuilder.ErrResourceNotFound
	case errors.Is(err, campaignsvc.ErrRetryInFlight), errors.Is(err, campaignsvc.ErrCampaignRunning):
		return respbuilder.ErrConflict
	case errors.Is(err, campaignsvc.ErrValidation), errors.Is(err, campaignsvc.ErrInvalidCSV):
		return respbuilder.ErrValidation
	}

	return respbuilder.ErrUnhandled
}

func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	respbuilder.WriteError(w, r, respbuilder.Error(r.Context(), errKind(err), err))
}

func writeValidationErr(w http.ResponseWriter, r *http.Request, err error) {
	respbuilder.WriteError(w, r, respbuilder.Error(r.Context(), respbuilder.ErrValidation, err))
}

// readFile returns nil when the form has no such file.
func readFile(form *multipart.Form, field string, limit int64) ([]byte, error) {
	files := form.File[field]
	if len(files) == 0 {
		return nil, nil
	}

	f, err := files[0].Open()
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", field, err)
	}

	defer f.Close()

	// one byte past the limit tells a full file from a cut one
	b, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", field, err)
	}

	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrFileTooLarge, field, limit)
	}

	return b, nil
}

type multipartCampaign struct {
	form         campaignForm
	senderFile   []byte
	receiverFile []byte
}

func (h *Handler) parseCampaignForm(w http.ResponseWriter, r *http.Request) (out multipartCampaign, err error) {
	// two files plus the text fields
	r.Body = http.MaxBytesReader(w, r.Body, 2*h.Config.MaxUploadBytes+formOverheadBytes)

	err = r.ParseMultipartForm(h.Config.MaxUploadBytes)
	if err != nil {
		err = fmt.Errorf("cannot parse multipart form: %w", err)
		return
	}

	err = h.decoder.Decode(&out.form, r.MultipartForm.Value)
	if err != nil {
		err = fmt.Errorf("cannot decode form: %w", err)
		return
	}

	out.senderFile, err = readFile(r.MultipartForm, fieldSenderFile, h.Config.MaxUploadBytes)
	if err != nil {
		return
	}

	out.receiverFile, err = readFile(r.MultipartForm, fieldReceiverFile, h.Config.MaxUploadBytes)
	return
}

func quotaOf(f campaignForm) int {
	if f.RecipientsPerSender == nil {
		return campaignsvc.DefaultQuota
	}

	return *f.RecipientsPerSender
}

// Plan parses both csv files and previews the dispatch without sending anything.
// Path         : POST /api/v1/campaigns/plan
// Request Body : multipart form
// Response     : PlanResp
func (h *Handler) Plan() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		in, err := h.parseCampaignForm(w, r)
		if err != nil {
			writeValidationErr(w, r, err)
			return
		}

		out, err := h.Config.CampaignService.Plan(ctx, campaignsvc.InputPlan{
			SenderFile:          in.senderFile,
			ReceiverFile:        in.receiverFile,
			Subject:             in.form.Subject,
			Body:                in.form.Body,
			RecipientsPerSender: quotaOf(in.form),
			UserEmail:           in.form.UserEmail,
		})
		if err != nil {
			writeErr(w, r, err)
			return
		}

		resp := respbuilder.Success(ctx, planRespFromSvc(out))
		respbuilder.WriteJSON(http.StatusOK, w, r, resp)
	}
}

// Submit creates a campaign and dispatches it.
// Path         : POST /api/v1/campaigns
// Request Body : multipart form
// Response     : CampaignResp
func (h *Handler) Submit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		in, err := h.parseCampaignForm(w, r)
		if err != nil {
			writeValidationErr(w, r, err)
			return
		}

		out, err := h.Config.CampaignService.Submit(ctx, campaignsvc.InputSubmit{
			UserName:            strings.TrimSpace(in.form.UserName),
			UserEmail:           strings.TrimSpace(in.form.UserEmail),
			Subject:             in.form.Subject,
			Body:                in.form.Body,
			RecipientsPerSender: quotaOf(in.form),
			SenderFile:          in.senderFile,
			ReceiverFile:        in.receiverFile,
			Sync:                in.form.Sync,
		})
		if err != nil {
			writeErr(w, r, err)
			return
		}

		status := http.StatusAccepted
		if in.form.Sync {
			status = http.StatusCreated
		}

		resp := respbuilder.Success(ctx, CampaignResp{
			Campaign: campaignEntityFromSvc(out.Campaign),
			Entries:  out.Entries,
			Summary:  out.Summary,
			Warnings: out.Warnings,
		})
		respbuilder.WriteJSON(status, w, r, resp)
	}
}

// Get returns the ledger of one campaign.
// Path     : GET /api/v1/campaigns/{id}
// Response : CampaignResp
func (h *Handler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		out, err := h.Config.CampaignService.Get(ctx, campaignsvc.InputGet{
			CampaignID: chi.URLParam(r, "id"),
		})
		if err != nil {
			writeErr(w, r, err)
			return
		}

		resp := respbuilder.Success(ctx, CampaignResp{
			Campaign: campaignEntityFromSvc(out.Campaign),
			Entries:  out.Entries,
			Summary:  out.Summary,
			Progress: out.Progress,
		})
		respbuilder.WriteJSON(http.StatusOK, w, r, resp)
	}
}

// Resubmit resets every delivery of a finished campaign to pending and dispatches again.
// Path     : POST /api/v1/campaigns/{id}/resubmit?sync=true
// Response : CampaignResp
func (h *Handler) Resubmit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var q resubmitQuery
		if err := h.decoder.Decode(&q, r.URL.Query()); err != nil {
			writeValidationErr(w, r, err)
			return
		}

		out, err := h.Config.CampaignService.Resubmit(ctx, campaignsvc.InputResubmit{
			CampaignID: chi.URLParam(r, "id"),
			Sync:       q.Sync,
		})
		if err != nil {
			writeErr(w, r, err)
			return
		}

		resp := respbuilder.Success(ctx, CampaignResp{
			Campaign: campaignEntityFromSvc(out.Campaign),
			Entries:  out.Entries,
			Summary:  out.Summary,
		})
		respbuilder.WriteJSON(http.StatusAccepted, w, r, resp)
	}
}

// Retry sends one (sender, recipient) message again and waits for its result.
// Path         : POST /api/v1/campaigns/{id}/retry
// Request Body : RetryReq
// Response     : RetryResp
func (h *Handler) Retry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if r.Body == nil {
			writeValidationErr(w, r, fmt.Errorf("request body is nil"))
			return
		}

		defer func() {
			if _err := r.Body.Close(); _err != nil {
				logger.Error(ctx, "cannot close request body", logger.KV("error", _err))
			}
		}()

		var reqBody RetryReq
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			writeValidationErr(w, r, err)
			return
		}

		out, err := h.Config.CampaignService.Retry(ctx, campaignsvc.InputRetry{
			CampaignID:     chi.URLParam(r, "id"),
			SenderEmail:    reqBody.SenderEmail,
			RecipientEmail: reqBody.RecipientEmail,
		})
		if err != nil {
			writeErr(w, r, err)
			return
		}

		resp := respbuilder.Success(ctx, RetryResp{
			Entry:   out.Entry,
			Summary: out.Summary,
		})
		respbuilder.WriteJSON(http.StatusOK, w, r, resp)
	}
}

// History lists finished delivery attempts of one campaign, oldest first.
// Path     : GET /api/v1/campaigns/{id}/history?limit=100
// Response : HistoryResp
func (h *Handler) History() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var q historyQuery
		if err := h.decoder.Decode(&q, r.URL.Query()); err != nil {
			writeValidationErr(w, r, err)
			return
		}

		out, err := h.Config.CampaignService.History(ctx, campaignsvc.InputHistory{
			CampaignID: chi.URLParam(r, "id"),
			Limit:      q.Limit,
		})
		if err != nil {
			writeErr(w, r, err)
			return
		}

		resp := respbuilder.Success(ctx, HistoryResp{Records: out.Records})
		respbuilder.WriteJSON(http.StatusOK, w, r, resp)
	}
}

// RequiredSenders computes how many senders cover a recipient count.
// Path     : GET /api/v1/senders/required?recipients=45&quota=20
// Response : RequiredSendersResp
func (h *Handler) RequiredSenders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		q := requiredSendersQuery{Quota: campaignsvc.DefaultQuota}
		if err := h.decoder.Decode(&q, r.URL.Query()); err != nil {
			writeValidationErr(w, r, err)
			return
		}

		out, err := h.Config.CampaignService.RequiredSenders(ctx, campaignsvc.InputRequiredSenders{
			Recipients: q.Recipients,
			Quota:      q.Quota,
		})
		if err != nil {
			writeErr(w, r, err)
			return
		}

		resp := respbuilder.Success(ctx, RequiredSendersResp{
			Recipients: q.Recipients,
			Quota:      q.Quota,
			Required:   out.Count,
		})
		respbuilder.WriteJSON(http.StatusOK, w, r, resp)
	}
}

// Events streams ledger changes of one campaign over websocket.
// Path : GET /api/v1/campaigns/{id}/ws
func (h *Handler) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := chi.URLParam(r, "id")

		if h.Config.Hub == nil {
			writeErr(w, r, fmt.Errorf("live events are disabled"))
			return
		}

		if _, err := h.Config.CampaignService.Get(ctx, campaignsvc.InputGet{CampaignID: id}); err != nil {
			writeErr(w, r, err)
			return
		}

		if err := h.Config.Hub.Serve(w, r, id); err != nil {
			// upgrader already replied to the client
			logger.Error(ctx, "websocket upgrade error", logger.KV("error", err))
		}
	}
}
