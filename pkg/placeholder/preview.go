package placeholder

import (
	"github.com/yusufsyaifudin/bulkmail/pkg/csvrecord"
)

type Rendered struct {
	Recipient csvrecord.Record `json:"recipient"`
	Subject   string           `json:"subject"`
	Body      string           `json:"body"`
	Missing   []string         `json:"missing"`
}

// Preview renders subject and body for at most limit recipients, in order.
func Preview(subject, body string, recipients []csvrecord.Record, limit int) []Rendered {
	if limit > len(recipients) {
		limit = len(recipients)
	}

	if limit < 0 {
		limit = 0
	}

	out := make([]Rendered, 0, limit)
	for _, rec := range recipients[:limit] {
		missing := Missing(subject, rec)
		seen := map[string]struct{}{}
		for _, m := range missing {
			seen[m] = struct{}{}
		}

		for _, m := range Missing(body, rec) {
			if _, exist := seen[m]; !exist {
				missing = append(missing, m)
			}
		}

		out = append(out, Rendered{
			Recipient: rec,
			Subject:   Render(subject, rec),
			Body:      Render(body, rec),
			Missing:   missing,
		})
	}

	return out
}
