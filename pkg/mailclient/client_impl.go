package mailclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/yusufsyaifudin/bulkmail/pkg/validator"
	"go.uber.org/multierr"
)

// Conn is the subset of *smtp.Client used to send one message.
type Conn interface {
	Noop() error
	Reset() error
	Mail(from string, opts *smtp.MailOptions) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

var _ Conn = (*smtp.Client)(nil)

type DialFunc func(ctx context.Context, cred Credential) (Conn, error)

type SmtpMailerConfig struct {
	Credential Credential `validate:"required"`

	// Dial opens an authenticated connection, default DialSMTP.
	Dial DialFunc `validate:"-"`
}

type SmtpMailer struct {
	Config SmtpMailerConfig
	conn   Conn
	lock   sync.Mutex
}

var _ Client = (*SmtpMailer)(nil)

// NewSmtp will return new smtp client without any real connection is made.
// It will connect on the first Send.
func NewSmtp(cfg SmtpMailerConfig) (*SmtpMailer, error) {
	err := validator.Validate(cfg)
	if err != nil {
		err = fmt.Errorf("validation error: %w", err)
		return nil, err
	}

	if cfg.Dial == nil {
		cfg.Dial = DialSMTP
	}

	return &SmtpMailer{Config: cfg}, nil
}

// Send delivers msg to its single recipient. A broken connection is dialed again once.
func (m *SmtpMailer) Send(ctx context.Context, msg Message) (err error) {
	err = validator.Validate(msg)
	if err != nil {
		err = fmt.Errorf("invalid message: %w", err)
		return
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if m.conn != nil && m.conn.Noop() != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	if m.conn == nil {
		m.conn, err = m.Config.Dial(ctx, m.Config.Credential)
		if err != nil {
			m.conn = nil
			err = fmt.Errorf("failed to init smtp client: %w", err)
			return
		}
	}

	// RSET command is for aborting already started mail transaction (tools.ietf.org/html/rfc5321#section-4.1.1.5).
	err = m.conn.Reset()
	if err != nil {
		err = fmt.Errorf("RSET cmd failed: %w", err)
		return
	}

	// New transaction is initiated using the MAIL command (tools.ietf.org/html/rfc5321#section-4.1.1.2).
	err = m.conn.Mail(msg.FromAddr, nil)
	if err != nil {
		err = fmt.Errorf("MAIL cmd failed: %w", err)
		return
	}

	err = m.conn.Rcpt(msg.ToAddr)
	if err != nil {
		err = fmt.Errorf("error recipient %s: %w", msg.ToAddr, err)
		return
	}

	var wc io.WriteCloser
	wc, err = m.conn.Data()
	if err != nil {
		err = fmt.Errorf("error data writer: %w", err)
		return
	}

	_, err = wc.Write(buildMessage(msg, time.Now()))
	if err != nil {
		_ = wc.Close()
		err = fmt.Errorf("error data copy: %w", err)
		return
	}

	err = wc.Close()
	if err != nil {
		err = fmt.Errorf("error data close: %w", err)
		return
	}

	return
}

// Close .
// https://stackoverflow.com/questions/2468851/when-should-i-send-quit-to-smtp-server-and-how-long-should-i-keep-a-session
func (m *SmtpMailer) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.conn == nil {
		return nil
	}

	conn := m.conn
	m.conn = nil

	_err := conn.Quit()
	if _err == nil {
		return nil
	}

	var err error
	err = multierr.Append(err, fmt.Errorf("quit command error: %w", _err))
	_err = conn.Close()
	if _err != nil {
		err = multierr.Append(err, fmt.Errorf("close command error: %w", _err))
	}

	return err
}

// DialSMTP connects to the credential server, upgrades to TLS according to TLSMode and authenticates with PLAIN.
func DialSMTP(ctx context.Context, cred Credential) (Conn, error) {
	err := validator.Validate(cred)
	if err != nil {
		err = fmt.Errorf("validation on email credential error: %w", err)
		return nil, err
	}

	smtpAddr := net.JoinHostPort(cred.ServerHost, strconv.Itoa(cred.ServerPort))
	tlsConfig := &tls.Config{ServerName: cred.ServerHost}

	var conn net.Conn
	dialer := &net.Dialer{}
	switch cred.TLSMode {
	case TLSModeImplicit:
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", smtpAddr)
	default:
		conn, err = dialer.DialContext(ctx, "tcp", smtpAddr)
	}

	if err != nil {
		err = fmt.Errorf("tcp dial error: %w", err)
		return nil, err
	}

	c, err := smtp.NewClient(conn, cred.ServerHost)
	if err != nil {
		_ = conn.Close()
		err = fmt.Errorf("error new smtp client: %w", err)
		return nil, err
	}

	if cred.TLSMode == "" || cred.TLSMode == TLSModeStartTLS {
		err = c.StartTLS(tlsConfig)
		if err != nil {
			_ = c.Close()
			err = fmt.Errorf("error start tls: %w", err)
			return nil, err
		}
	}

	err = c.Auth(sasl.NewPlainClient(cred.AuthIdentity, cred.Username, cred.Password))
	if err != nil {
		_ = c.Close()
		err = fmt.Errorf("error auth: %w", err)
		return nil, err
	}

	return c, nil
}
