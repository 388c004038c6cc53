package logger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bitechdev/StrapiSpec/pkg/errortracking"
)

type recordingTracker struct {
	errortracking.NoOpProvider
	mu       sync.Mutex
	messages []errortracking.Severity
	errs     []map[string]interface{}
	panics   int
}

func (r *recordingTracker) CaptureMessage(ctx context.Context, message string, severity errortracking.Severity, extra map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, severity)
}

func (r *recordingTracker) CaptureError(ctx context.Context, err error, severity errortracking.Severity, extra map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, extra)
}

func (r *recordingTracker) CapturePanic(ctx context.Context, recovered interface{}, stackTrace []byte, extra map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panics++
}

func TestTrackerReceivesWarningsAndErrors(t *testing.T) {
	Init(true)
	tracker := &recordingTracker{}
	InitErrorTracking(tracker)
	defer InitErrorTracking(nil)

	Info("not forwarded")
	Debug("not forwarded either")
	Warn("schema fetch failed for %s", "api::article.article")
	Error("query failed: %v", errors.New("boom"))
	CaptureError(context.Background(), errors.New("bad gateway"), map[string]interface{}{"collection": "articles"})
	CaptureError(context.Background(), nil, nil)

	assert.Equal(t, []errortracking.Severity{errortracking.SeverityWarning, errortracking.SeverityError}, tracker.messages)
	assert.Len(t, tracker.errs, 1)
	assert.Equal(t, "articles", tracker.errs[0]["collection"])
}

func TestHandlePanic(t *testing.T) {
	Init(true)
	tracker := &recordingTracker{}
	InitErrorTracking(tracker)
	defer InitErrorTracking(nil)

	run := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = HandlePanic(context.Background(), "run", r)
			}
		}()
		panic("compile exploded")
	}

	err := run()
	assert.EqualError(t, err, "panic in run: compile exploded")
	assert.Equal(t, 1, tracker.panics)
}

func TestCatchPanicCallback(t *testing.T) {
	Init(true)
	var got any
	func() {
		defer CatchPanicCallback("worker", func(err any) { got = err })
		panic("stop")
	}()
	assert.Equal(t, "stop", got)
}
