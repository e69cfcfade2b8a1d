package restapi_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yusufsyaifudin/bulkmail/internal/storage/campaignrepo"
	"github.com/yusufsyaifudin/bulkmail/internal/storage/historyrepo"
	"github.com/yusufsyaifudin/bulkmail/internal/submitter"
	"github.com/yusufsyaifudin/bulkmail/internal/svc/campaignsvc"
	"github.com/yusufsyaifudin/bulkmail/pkg/cache"
	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
	"github.com/yusufsyaifudin/bulkmail/pkg/respbuilder"
	"github.com/yusufsyaifudin/bulkmail/pkg/worker"
	"github.com/yusufsyaifudin/bulkmail/transport/restapi"
	"github.com/yusufsyaifudin/bulkmail/transport/restapi/handlercampaign"
	"github.com/yusufsyaifudin/bulkmail/transport/restapi/wshub"
)

const (
	senderCSV   = "name,email,password\nAna,ana@x.io,secret\nBudi,budi@x.io,secret\n"
	receiverCSV = "name,email\nC1,c1@x.io\nC2,c2@x.io\nC3,c3@x.io\n"
)

type seqID struct {
	n uint64
}

func (s *seqID) NextID() (uint64, error) {
	return atomic.AddUint64(&s.n, 1), nil
}

type envelope struct {
	TraceID string                   `json:"trace_id"`
	Data    json.RawMessage          `json:"data"`
	Error   *respbuilder.ErrorEntity `json:"error"`
}

func newServer(t *testing.T) (http.Handler, *wshub.Hub) {
	t.Helper()
	return newServerWithLimit(t, 0)
}

func newServerWithLimit(t *testing.T, maxUploadBytes int64) (http.Handler, *wshub.Hub) {
	t.Helper()

	store, err := cache.NewInMemory()
	require.NoError(t, err)

	repo, err := campaignrepo.NewRepoCache(campaignrepo.RepoCacheConfig{Cache: store})
	require.NoError(t, err)

	w := worker.NewWorker(2, 10)
	t.Cleanup(w.Done)

	hub := wshub.New(0)
	t.Cleanup(func() { _ = hub.Close() })

	svc, err := campaignsvc.New(campaignsvc.DefaultServiceConfig{
		Repo:      repo,
		History:   historyrepo.NewInMemory(0),
		Submitter: &submitter.Noop{},
		Worker:    w,
		UIDGen:    &seqID{},
		Publisher: hub,
	})
	require.NoError(t, err)

	transport, err := restapi.NewHTTPTransport(restapi.Config{
		AppServiceName:  "bulkmail",
		AppVersion:      "test",
		CampaignService: svc,
		Hub:             hub,
		MaxUploadBytes:  maxUploadBytes,
	})
	require.NoError(t, err)

	return transport.Server(), hub
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}

	for k, v := range files {
		fw, err := mw.CreateFormFile(k, k+".csv")
		require.NoError(t, err)

		_, err = fw.Write([]byte(v))
		require.NoError(t, err)
	}

	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, req *http.Request) (int, envelope) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func submit(t *testing.T, h http.Handler, fields map[string]string) (int, envelope) {
	body, contentType := multipartBody(t, fields, map[string]string{
		"sender_file":   senderCSV,
		"receiver_file": receiverCSV,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns", body)
	req.Header.Set("Content-Type", contentType)
	return do(t, h, req)
}

func TestHealth(t *testing.T) {
	h, _ := newServer(t)

	code, env := do(t, h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"service":"bulkmail","version":"test","status":"ok"}`, string(env.Data))
}

func TestPlan(t *testing.T) {
	h, _ := newServer(t)

	body, contentType := multipartBody(t,
		map[string]string{"subject": "Hi {name}", "body": "Hello {name}", "recipients_per_sender": "2"},
		map[string]string{"sender_file": senderCSV, "receiver_file": receiverCSV},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/plan", body)
	req.Header.Set("Content-Type", contentType)

	code, env := do(t, h, req)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, env.TraceID)

	var plan handlercampaign.PlanResp
	require.NoError(t, json.Unmarshal(env.Data, &plan))
	assert.Equal(t, 2, plan.SenderCount)
	assert.Equal(t, 3, plan.RecipientCount)
	assert.Equal(t, 2, plan.RequiredSenders)
	assert.Len(t, plan.Batches, 2)
	assert.Len(t, plan.Preview, 3)
	assert.Equal(t, "Hi C1", plan.Preview[0].Subject)
	assert.NotContains(t, string(env.Data), "secret")
}

func TestSubmitAndGet(t *testing.T) {
	h, _ := newServer(t)

	code, env := submit(t, h, map[string]string{
		"subject":               "Hi {name}",
		"body":                  "Hello {name}, welcome",
		"recipients_per_sender": "2",
		"sync":                  "true",
	})
	require.Equal(t, http.StatusCreated, code, string(env.Data))
	assert.NotContains(t, string(env.Data), "secret")

	var created handlercampaign.CampaignResp
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, ledger.Summary{Total: 3, Sent: 3}, created.Summary)

	code, env = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/"+created.Campaign.ID, nil))
	require.Equal(t, http.StatusOK, code)

	var got handlercampaign.CampaignResp
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 3, got.Summary.Sent)
	assert.Equal(t, 100.0, got.Progress)
	assert.NotNil(t, got.Campaign.FinishedAt)

	code, env = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/"+created.Campaign.ID+"/history?limit=2", nil))
	require.Equal(t, http.StatusOK, code)

	var hist handlercampaign.HistoryResp
	require.NoError(t, json.Unmarshal(env.Data, &hist))
	assert.Len(t, hist.Records, 2)
}

func TestErrors(t *testing.T) {
	h, _ := newServer(t)

	_, env := submit(t, h, map[string]string{
		"subject":               "Hi {name}",
		"body":                  "Hello {name}, welcome",
		"recipients_per_sender": "2",
		"sync":                  "true",
	})

	var created handlercampaign.CampaignResp
	require.NoError(t, json.Unmarshal(env.Data, &created))

	retry := func(body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/"+created.Campaign.ID+"/retry", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	tests := []struct {
		name     string
		req      func() *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name: "invalid quota",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/v1/senders/required?recipients=45&quota=0", nil)
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "06",
		},
		{
			name: "unknown pair",
			req: func() *http.Request {
				return retry(`{"sender_email":"budi@x.io","recipient_email":"c1@x.io"}`)
			},
			wantCode: http.StatusNotFound,
			wantErr:  "07",
		},
		{
			name: "campaign not found",
			req: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/404", nil)
			},
			wantCode: http.StatusNotFound,
			wantErr:  "04",
		},
		{
			name: "retry body not json",
			req: func() *http.Request {
				return retry(`nope`)
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "02",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, h, tt.req())
			assert.Equal(t, tt.wantCode, code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantErr, env.Error.Code)
			assert.NotEmpty(t, env.Error.TraceID)
		})
	}
}

func TestSubmit_Validation(t *testing.T) {
	h, _ := newServer(t)

	code, env := submit(t, h, map[string]string{
		"subject":               "Hi",
		"body":                  "Hello {name}, welcome",
		"recipients_per_sender": "2",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "02", env.Error.Code)
	require.Len(t, env.Error.Fields, 1)
	assert.Equal(t, "subject", env.Error.Fields[0].Field)
	assert.Equal(t, "min", env.Error.Fields[0].Rule)
}

func TestPlan_FileTooLarge(t *testing.T) {
	h, _ := newServerWithLimit(t, 40)

	// a copy cut at 40 bytes would end in "Budi,budi"
	receivers := "name,email\nAna,ana@example.com\nBudi,budi@example.com\n"
	require.Len(t, receivers, 53)

	body, contentType := multipartBody(t,
		map[string]string{"subject": "Hi {name}", "body": "Hello {name}", "recipients_per_sender": "2"},
		map[string]string{"sender_file": "name,email,password\nS,s@x.io,pw\n", "receiver_file": receivers},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/plan", body)
	req.Header.Set("Content-Type", contentType)

	code, env := do(t, h, req)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "02", env.Error.Code)
}

func TestPlan_FileAtLimit(t *testing.T) {
	h, _ := newServerWithLimit(t, 53)

	receivers := "name,email\nAna,ana@example.com\nBudi,budi@example.com\n"
	body, contentType := multipartBody(t,
		map[string]string{"subject": "Hi {name}", "body": "Hello {name}", "recipients_per_sender": "2"},
		map[string]string{"sender_file": "name,email,password\nS,s@x.io,pw\n", "receiver_file": receivers},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/plan", body)
	req.Header.Set("Content-Type", contentType)

	code, env := do(t, h, req)
	require.Equal(t, http.StatusOK, code)

	var plan handlercampaign.PlanResp
	require.NoError(t, json.Unmarshal(env.Data, &plan))
	assert.Equal(t, 2, plan.RecipientCount)
}

func TestRequiredSenders(t *testing.T) {
	h, _ := newServer(t)

	code, env := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/senders/required?recipients=45", nil))
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"recipients":45,"quota":20,"required":3}`, string(env.Data))

	code, env = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/senders/required?recipients=5&quota=9223372036854775807", nil))
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"recipients":5,"quota":9223372036854775807,"required":1}`, string(env.Data))
}

func TestEvents(t *testing.T) {
	h, hub := newServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	_, env := submit(t, h, map[string]string{
		"subject":               "Hi {name}",
		"body":                  "Hello {name}, welcome",
		"recipients_per_sender": "2",
		"sync":                  "true",
	})

	var created handlercampaign.CampaignResp
	require.NoError(t, json.Unmarshal(env.Data, &created))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/campaigns/" + created.Campaign.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.Subscribers(created.Campaign.ID) == 1
	}, time.Second, 5*time.Millisecond)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/"+created.Campaign.ID+"/retry",
		strings.NewReader(`{"sender_email":"ana@x.io","recipient_email":"c1@x.io"}`))
	req.Header.Set("Content-Type", "application/json")

	code, _ := do(t, h, req)
	require.Equal(t, http.StatusOK, code)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// events of the submit itself may still be in flight, skip to the retry
	var msg wshub.Message
	for {
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Data.Entry != nil && msg.Data.Entry.Status == ledger.StatusRetrying {
			break
		}
	}

	assert.Equal(t, "entry", msg.Type)
	msg = wshub.Message{}
	require.NoError(t, conn.ReadJSON(&msg))
	require.NotNil(t, msg.Data.Entry)
	assert.Equal(t, ledger.StatusSent, msg.Data.Entry.Status)

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/campaigns/404/ws", nil)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
}
