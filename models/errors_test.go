package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrapeErrorWrapping(t *testing.T) {
	inner := NewScrapeError(ErrCodeSessionClosed, "page gone", context.Canceled)
	outer := NewScrapeError(ErrCodeRowFatal, "row 3", inner)
	wrapped := fmt.Errorf("process: %w", outer)

	assert.True(t, HasCode(wrapped, ErrCodeRowFatal))
	assert.True(t, HasCode(wrapped, ErrCodeSessionClosed))
	assert.True(t, IsSessionClosed(wrapped))
	assert.False(t, HasCode(wrapped, ErrCodeNoCandidate))
	assert.Equal(t, ErrCodeRowFatal, CodeOf(wrapped))
	assert.ErrorIs(t, wrapped, context.Canceled)
}

func TestScrapeErrorMessage(t *testing.T) {
	err := NewScrapeError(ErrCodeNoCandidate, "no results table", nil)
	assert.Equal(t, "NO_CANDIDATE_MATCHED: no results table", err.Error())

	err = NewScrapeError(ErrCodeRunFatal, "search", errors.New("boom"))
	assert.Equal(t, "RUN_FATAL: search: boom", err.Error())
	assert.Equal(t, &ErrorDetail{Code: ErrCodeRunFatal, Message: "search"}, err.ToDetail())
}

func TestPlainErrorsHaveNoCode(t *testing.T) {
	assert.False(t, IsSessionClosed(errors.New("has been closed")))
	assert.Equal(t, "", CodeOf(nil))
}

func TestEmptyRecordIsAllSentinel(t *testing.T) {
	rec := EmptyRecord()
	for _, v := range rec.Values() {
		assert.Equal(t, Unavailable, v)
	}
	assert.Len(t, rec.Values(), len(RecordHeader))
	assert.False(t, rec.HasPrice())
}

func TestOutcomePrice(t *testing.T) {
	assert.Equal(t, "₹18625", Outcome{Kind: OutcomeValue, Value: "₹18625"}.Price())
	assert.Equal(t, Unavailable, Outcome{Kind: OutcomeUnavailable}.Price())
	assert.Equal(t, Unavailable, Outcome{Kind: OutcomeUnavailableCaptured, SnapshotPath: "x.png"}.Price())
}

func TestRunStatusPercent(t *testing.T) {
	assert.Equal(t, 0.0, RunStatus{}.Percent())
	assert.Equal(t, 50.0, RunStatus{Total: 10, Processed: 5}.Percent())
	assert.True(t, RunStatus{State: StateFailed}.Terminal())
	assert.False(t, RunStatus{State: StateRowIterating}.Terminal())
}
