package submitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/yusufsyaifudin/bulkmail/pkg/ledger"
)

func TestParseStatus(t *testing.T) {
	testCases := []struct {
		In     string
		Status ledger.Status
		Detail string
	}{
		{In: "sent", Status: ledger.StatusSent},
		{In: " Sent ", Status: ledger.StatusSent},
		{In: "failed: (535, b'auth failed')", Status: ledger.StatusFailed, Detail: "(535, b'auth failed')"},
		{In: "Failed: Missing sender information", Status: ledger.StatusFailed, Detail: "Missing sender information"},
		{In: "failed", Status: ledger.StatusFailed},
		{In: "queued", Status: ledger.StatusFailed, Detail: "queued"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.In, func(t *testing.T) {
			status, detail := parseStatus(testCase.In)
			assert.Equal(t, testCase.Status, status)
			assert.Equal(t, testCase.Detail, detail)
		})
	}
}

func TestParseTimeTaken(t *testing.T) {
	assert.Equal(t, 1230*time.Millisecond, parseTimeTaken("1.23 seconds"))
	assert.Equal(t, time.Duration(0), parseTimeTaken(""))
	assert.Equal(t, time.Duration(0), parseTimeTaken("soon"))
	assert.Equal(t, time.Duration(0), parseTimeTaken("-1 seconds"))
}
