package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/recoveryfinder/models"
)

func TestNotifySignsPayload(t *testing.T) {
	var (
		gotBody []byte
		gotSig  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "s3cret")
	event := NewRunEvent(models.RunStatus{RunID: "run-1", State: models.StateCompleted, Total: 3, Processed: 3})
	require.NoError(t, n.Notify(context.Background(), event))

	assert.Equal(t, "sha256="+Sign("s3cret", gotBody), gotSig)
	var decoded Event
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, EventRunCompleted, decoded.Type)
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, 3, decoded.Data.Processed)
}

func TestNotifyRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Empty(t, r.Header.Get(SignatureHeader))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "")
	n.Delays = []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}
	require.NoError(t, n.Notify(context.Background(), NewRunEvent(models.RunStatus{State: models.StateFailed})))
	assert.Equal(t, int32(3), calls.Load())
}

func TestNotifyGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "")
	n.Delays = []time.Duration{0, 0}
	err := n.Notify(context.Background(), NewRunEvent(models.RunStatus{}))
	assert.ErrorContains(t, err, "status 500")
	assert.Equal(t, int32(2), calls.Load())
}

func TestNilNotifier(t *testing.T) {
	n := NewNotifier("", "secret")
	assert.Nil(t, n)
	assert.NoError(t, n.Notify(context.Background(), NewRunEvent(models.RunStatus{})))
}

func TestRunEventType(t *testing.T) {
	assert.Equal(t, EventRunFailed, NewRunEvent(models.RunStatus{State: models.StateFailed}).Type)
	assert.Equal(t, EventRunCompleted, NewRunEvent(models.RunStatus{State: models.StateCompleted}).Type)
}
