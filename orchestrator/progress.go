package orchestrator

import (
	"sync"
	"time"

	"github.com/use-agent/recoveryfinder/models"
)

// Progress is the run's shared status, written by the pipeline and read by
// the status API.
type Progress struct {
	mu     sync.RWMutex
	status models.RunStatus
}

// NewProgress returns a tracker in the init state.
func NewProgress(runID string) *Progress {
	return &Progress{status: models.RunStatus{
		RunID:     runID,
		State:     models.StateInit,
		StartedAt: time.Now().UTC(),
	}}
}

// SetState records a state transition.
func (p *Progress) SetState(state string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.State = state
}

// Begin records the resolved results view and the number of rows to visit.
func (p *Progress) Begin(total int, resultsURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.State = models.StateRowIterating
	p.status.Total = total
	p.status.ResultsURL = resultsURL
}

// RowDone counts a written record.
func (p *Progress) RowDone(priced bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Processed++
	if priced {
		p.status.Priced++
	}
}

// Recovered counts a session relaunch.
func (p *Progress) Recovered() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Recoveries++
}

// Finish moves the run to completed, or to failed when err is not nil.
func (p *Progress) Finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now().UTC()
	p.status.FinishedAt = &now
	if err == nil {
		p.status.State = models.StateCompleted
		return
	}
	p.status.State = models.StateFailed
	code := models.CodeOf(err)
	if code == "" {
		code = models.ErrCodeRunFatal
	}
	p.status.Error = &models.ErrorDetail{Code: code, Message: err.Error()}
}

// Status returns a copy of the current status.
func (p *Progress) Status() models.RunStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.status
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		s.FinishedAt = &t
	}
	if s.Error != nil {
		e := *s.Error
		s.Error = &e
	}
	return s
}
