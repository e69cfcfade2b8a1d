package submitter_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yusufsyaifudin/bulkmail/internal/submitter"
	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
	"github.com/yusufsyaifudin/bulkmail/pkg/mailclient"
)

type fakeClient struct {
	mu   sync.Mutex
	sent []mailclient.Message
	fail map[string]error
}

func (f *fakeClient) Send(_ context.Context, msg mailclient.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail[msg.ToAddr]; err != nil {
		return err
	}

	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeClient) Close() error {
	return nil
}

type fakeManager struct {
	client  *fakeClient
	cred    mailclient.Credential
	failGet error
}

func (f *fakeManager) Get(_ context.Context, cred mailclient.Credential) (mailclient.Client, error) {
	f.cred = cred
	if f.failGet != nil {
		return nil, f.failGet
	}

	return f.client, nil
}

func (f *fakeManager) Close() error {
	return nil
}

func TestNewSMTP(t *testing.T) {
	_, err := submitter.NewSMTP(submitter.SMTPConfig{})
	assert.Error(t, err)
}

func TestSMTP_Submit(t *testing.T) {
	client := &fakeClient{fail: map[string]error{"cici@x.io": errors.New("550 rejected")}}
	mng := &fakeManager{client: client}

	s, err := submitter.NewSMTP(submitter.SMTPConfig{
		Mailer:     mng,
		ServerHost: "smtp.gmail.com",
		ServerPort: 587,
		Greeting:   "Hi {name},\n",
		Signature:  "\n\nBest,\n{name}",
	})
	require.NoError(t, err)

	b := sampleBatch()
	report, err := s.Submit(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, "ana@sender.io", mng.cred.Username)
	assert.Equal(t, "app-pass", mng.cred.Password)
	assert.Equal(t, "smtp.gmail.com", mng.cred.ServerHost)

	require.Len(t, report.Results, 3)
	assert.Equal(t, ledger.StatusSent, report.Results[0].Status)
	assert.Equal(t, ledger.StatusFailed, report.Results[1].Status)
	assert.Equal(t, "550 rejected", report.Results[1].Detail)

	require.Len(t, client.sent, 2)
	assert.Equal(t, "Hi Budi", client.sent[0].Subject)
	assert.Equal(t, "Hi Budi,\nHello Budi at {company}\n\nBest,\nAna", client.sent[0].Body)
	assert.Equal(t, "Ana", client.sent[0].FromName)
	assert.Equal(t, "dedi@x.io", client.sent[1].ToAddr)
}

func TestSMTP_Submit_NoClient(t *testing.T) {
	s, err := submitter.NewSMTP(submitter.SMTPConfig{
		Mailer:     &fakeManager{failGet: errors.New("bad credential")},
		ServerHost: "smtp.gmail.com",
		ServerPort: 587,
	})
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), sampleBatch())
	assert.ErrorContains(t, err, "bad credential")
}
