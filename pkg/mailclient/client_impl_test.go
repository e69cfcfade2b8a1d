package mailclient_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yusufsyaifudin/bulkmail/pkg/mailclient"
)

type buffer struct {
	bytes.Buffer
}

func (b *buffer) Close() error {
	return nil
}

type fakeConn struct {
	cmds    []string
	data    *buffer
	noopErr error
	rcptErr error
	closed  bool
}

func (f *fakeConn) Noop() error {
	f.cmds = append(f.cmds, "NOOP")
	return f.noopErr
}

func (f *fakeConn) Reset() error {
	f.cmds = append(f.cmds, "RSET")
	return nil
}

func (f *fakeConn) Mail(from string, _ *smtp.MailOptions) error {
	f.cmds = append(f.cmds, "MAIL "+from)
	return nil
}

func (f *fakeConn) Rcpt(to string) error {
	f.cmds = append(f.cmds, "RCPT "+to)
	return f.rcptErr
}

func (f *fakeConn) Data() (io.WriteCloser, error) {
	f.cmds = append(f.cmds, "DATA")
	f.data = &buffer{}
	return f.data, nil
}

func (f *fakeConn) Quit() error {
	f.cmds = append(f.cmds, "QUIT")
	f.closed = true
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

var cred = mailclient.Credential{
	ServerHost: "smtp.example.com",
	ServerPort: 587,
	Username:   "ana@example.com",
	Password:   "secret",
}

var msg = mailclient.Message{
	FromAddr: "ana@example.com",
	FromName: "Ana",
	ToAddr:   "budi@example.com",
	ToName:   "Budi",
	Subject:  "Hello Budi",
	Body:     "Hi Budi,\nwelcome.",
}

func TestNewSmtp(t *testing.T) {
	c, err := mailclient.NewSmtp(mailclient.SmtpMailerConfig{})
	assert.Nil(t, c)
	assert.Error(t, err)

	c, err = mailclient.NewSmtp(mailclient.SmtpMailerConfig{Credential: cred})
	assert.NotNil(t, c)
	assert.NoError(t, err)
	assert.NoError(t, c.Close())
}

func TestSmtpMailer_Send(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		conn := &fakeConn{}
		dials := 0
		c, err := mailclient.NewSmtp(mailclient.SmtpMailerConfig{
			Credential: cred,
			Dial: func(ctx context.Context, cred mailclient.Credential) (mailclient.Conn, error) {
				dials++
				return conn, nil
			},
		})
		require.NoError(t, err)

		require.NoError(t, c.Send(context.Background(), msg))
		require.NoError(t, c.Send(context.Background(), msg))
		assert.Equal(t, 1, dials)

		assert.Equal(t, []string{
			"RSET", "MAIL ana@example.com", "RCPT budi@example.com", "DATA",
			"NOOP", "RSET", "MAIL ana@example.com", "RCPT budi@example.com", "DATA",
		}, conn.cmds)

		body := conn.data.String()
		assert.Contains(t, body, "From: \"Ana\" <ana@example.com>\r\n")
		assert.Contains(t, body, "To: \"Budi\" <budi@example.com>\r\n")
		assert.Contains(t, body, "Subject: Hello Budi\r\n")
		assert.Contains(t, body, "Hi Budi,\r\nwelcome.\r\n")

		require.NoError(t, c.Close())
		assert.True(t, conn.closed)
	})

	t.Run("redial on broken connection", func(t *testing.T) {
		broken := &fakeConn{noopErr: errors.New("eof")}
		fresh := &fakeConn{}
		conns := []*fakeConn{broken, fresh}
		c, err := mailclient.NewSmtp(mailclient.SmtpMailerConfig{
			Credential: cred,
			Dial: func(ctx context.Context, cred mailclient.Credential) (mailclient.Conn, error) {
				next := conns[0]
				conns = conns[1:]
				return next, nil
			},
		})
		require.NoError(t, err)

		require.NoError(t, c.Send(context.Background(), msg))
		require.NoError(t, c.Send(context.Background(), msg))

		assert.True(t, broken.closed)
		assert.NotNil(t, fresh.data)
	})

	t.Run("recipient rejected", func(t *testing.T) {
		conn := &fakeConn{rcptErr: errors.New("550 no such user")}
		c, err := mailclient.NewSmtp(mailclient.SmtpMailerConfig{
			Credential: cred,
			Dial: func(ctx context.Context, cred mailclient.Credential) (mailclient.Conn, error) {
				return conn, nil
			},
		})
		require.NoError(t, err)

		err = c.Send(context.Background(), msg)
		assert.ErrorContains(t, err, "550 no such user")
	})

	t.Run("dial error", func(t *testing.T) {
		c, err := mailclient.NewSmtp(mailclient.SmtpMailerConfig{
			Credential: cred,
			Dial: func(ctx context.Context, cred mailclient.Credential) (mailclient.Conn, error) {
				return nil, errors.New("connection refused")
			},
		})
		require.NoError(t, err)

		err = c.Send(context.Background(), msg)
		assert.ErrorContains(t, err, "failed to init smtp client")
	})

	t.Run("invalid message", func(t *testing.T) {
		c, err := mailclient.NewSmtp(mailclient.SmtpMailerConfig{Credential: cred})
		require.NoError(t, err)

		bad := msg
		bad.ToAddr = "not-an-email"
		assert.Error(t, c.Send(context.Background(), bad))
	})
}

func TestClientMngImpl(t *testing.T) {
	created := 0
	mng := mailclient.NewClientSmtpManager()
	mng.MaxSize = 2
	mng.Factory = func(cred mailclient.Credential) (*mailclient.SmtpMailer, error) {
		created++
		return mailclient.NewSmtp(mailclient.SmtpMailerConfig{Credential: cred})
	}

	a1, err := mng.Get(context.Background(), cred)
	require.NoError(t, err)

	a2, err := mng.Get(context.Background(), cred)
	require.NoError(t, err)
	assert.Same(t, a1, a2)
	assert.Equal(t, 1, created)

	other := cred
	other.Username = "budi@example.com"
	_, err = mng.Get(context.Background(), other)
	require.NoError(t, err)

	third := cred
	third.Username = "cici@example.com"
	_, err = mng.Get(context.Background(), third)
	require.NoError(t, err)

	assert.Equal(t, 2, mng.Len())
	assert.Equal(t, 3, created)

	// first credential was evicted
	_, err = mng.Get(context.Background(), cred)
	require.NoError(t, err)
	assert.Equal(t, 4, created)

	assert.NoError(t, mng.Close())
	assert.Equal(t, 0, mng.Len())
}
