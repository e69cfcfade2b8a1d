package historyrepo

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/yusufsyaifudin/bulkmail/pkg/validator"
)

// InMemory keeps history in process, used when no database is configured.
// Once MaxRecords is reached the oldest records are dropped.
type InMemory struct {
	MaxRecords int

	mu      sync.RWMutex
	nextID  int64
	records []Record
}

var _ Repo = (*InMemory)(nil)

func NewInMemory(maxRecords int) *InMemory {
	if maxRecords <= 0 {
		maxRecords = 100000
	}

	return &InMemory{MaxRecords: maxRecords, records: make([]Record, 0)}
}

func (m *InMemory) Migrate(context.Context) error {
	return nil
}

func (m *InMemory) Append(_ context.Context, in InputAppend) (out OutAppend, err error) {
	err = validator.Validate(in)
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrValidation, err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := make([]Record, 0, len(in.Records))
	for _, r := range in.Records {
		m.nextID++
		r.ID = m.nextID
		r.SenderEmail = strings.ToLower(r.SenderEmail)
		r.RecipientEmail = strings.ToLower(r.RecipientEmail)
		m.records = append(m.records, r)
		inserted = append(inserted, r)
	}

	if over := len(m.records) - m.MaxRecords; over > 0 {
		m.records = append(make([]Record, 0, m.MaxRecords), m.records[over:]...)
	}

	out = OutAppend{Records: inserted}
	return
}

func (m *InMemory) ListByCampaign(_ context.Context, in InputListByCampaign) (out OutListByCampaign, err error) {
	err = validator.Validate(in)
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrValidation, err)
		return
	}

	limit := in.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]Record, 0)
	for _, r := range m.records {
		if int64(len(records)) >= limit {
			break
		}

		if r.CampaignID == in.CampaignID {
			records = append(records, r)
		}
	}

	out = OutListByCampaign{Records: records}
	return
}
