package mailclient

import (
	"container/list"
	"context"
	"crypto/sha1"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
)

type ClientSmtpManager interface {
	Get(ctx context.Context, cred Credential) (Client, error)
	Close() error
}

// ClientMngImpl keeps one SmtpMailer per credential, evicting the least recently used.
type ClientMngImpl struct {
	// MaxSize is the maximum number of clients allowed in the manager. When
	// this limit is reached, the least recently used client is evicted. Set
	// zero for no limit.
	MaxSize int

	// MaxAge is the maximum idle age of a client. An older client is closed and replaced on Get.
	// Set zero to disable.
	MaxAge time.Duration

	// Factory is the function which constructs clients if not found in the manager.
	Factory func(cred Credential) (*SmtpMailer, error)

	cache map[[sha1.Size]byte]*list.Element
	ll    *list.List
	mu    sync.Mutex
}

var _ ClientSmtpManager = (*ClientMngImpl)(nil)

func NewClientSmtpManager() *ClientMngImpl {
	return &ClientMngImpl{
		MaxSize: 64,
		MaxAge:  10 * time.Minute,
		Factory: func(cred Credential) (*SmtpMailer, error) {
			return NewSmtp(SmtpMailerConfig{Credential: cred})
		},
		cache: map[[sha1.Size]byte]*list.Element{},
		ll:    list.New(),
	}
}

type managerItem struct {
	key      [sha1.Size]byte
	client   *SmtpMailer
	lastUsed time.Time
}

func (m *ClientMngImpl) Get(_ context.Context, cred Credential) (Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cacheKey(cred)
	now := time.Now()
	if ele, exist := m.cache[key]; exist {
		item := ele.Value.(*managerItem)
		if m.MaxAge != 0 && item.lastUsed.Before(now.Add(-m.MaxAge)) {
			c, err := m.newClient(cred)
			if err != nil {
				return nil, err
			}

			_ = item.client.Close()
			item.client = c
		}

		item.lastUsed = now
		m.ll.MoveToFront(ele)
		return item.client, nil
	}

	c, err := m.newClient(cred)
	if err != nil {
		return nil, err
	}

	m.cache[key] = m.ll.PushFront(&managerItem{key: key, client: c, lastUsed: now})
	if m.MaxSize != 0 && m.ll.Len() > m.MaxSize {
		m.removeElement(m.ll.Back())
	}

	return c, nil
}

func (m *ClientMngImpl) newClient(cred Credential) (*SmtpMailer, error) {
	c, err := m.Factory(cred)
	if err != nil {
		return nil, err
	}

	if c == nil {
		return nil, fmt.Errorf("cannot initate client with the credential")
	}

	return c, nil
}

// Len returns the current size of the ClientManager.
func (m *ClientMngImpl) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ll.Len()
}

// Close closes and forgets every client.
func (m *ClientMngImpl) Close() (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ele := m.ll.Front(); ele != nil; ele = ele.Next() {
		err = multierr.Append(err, ele.Value.(*managerItem).client.Close())
	}

	m.cache = map[[sha1.Size]byte]*list.Element{}
	m.ll.Init()
	return
}

// removeElement must be called with mu held.
func (m *ClientMngImpl) removeElement(e *list.Element) {
	if e == nil {
		return
	}

	item := e.Value.(*managerItem)
	m.ll.Remove(e)
	delete(m.cache, item.key)
	_ = item.client.Close()
}

// cacheKey is to ensure that one client with the same credential reuse the same connection.
// It uses the URL-like format: username:password@host:port
func cacheKey(cred Credential) [sha1.Size]byte {
	data := fmt.Sprintf("%s:%s@%s:%d/%s", cred.Username, cred.Password, cred.ServerHost, cred.ServerPort, cred.TLSMode)
	if cred.AuthIdentity != "" {
		data = fmt.Sprintf("%s?auth_identity=%s", data, cred.AuthIdentity)
	}

	return sha1.Sum([]byte(data))
}
