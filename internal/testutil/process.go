package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/frontbase/internal/ir"
	"github.com/roach88/frontbase/internal/process"
)

// Run is one recorded process execution.
type Run struct {
	ProcessID string
	Trigger   string
	Source    process.Source
	User      string
}

// Recorder is a process.Factory whose processes record their runs.
//
// Failing process ids make Execute return an error; Rejected ids make the
// factory itself fail.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Recorder struct {
	Failing  map[string]bool
	Rejected map[string]bool

	mu     sync.Mutex
	runs   []Run
	signal chan Run
}

// NewRecorder creates a recorder. Every run is also sent on Runs(), which
// buffers up to 64 runs.
func NewRecorder() *Recorder {
	return &Recorder{
		Failing:  make(map[string]bool),
		Rejected: make(map[string]bool),
		signal:   make(chan Run, 64),
	}
}

// Factory returns the process.Factory backed by r.
func (r *Recorder) Factory() process.Factory {
	return func(spec ir.ProcessSpec, sc ir.SecurityContext) (process.Process, error) {
		if r.Rejected[spec.ID] {
			return nil, fmt.Errorf("process %s rejected", spec.ID)
		}
		return &recordingProcess{rec: r, id: spec.ID, user: sc.UserID}, nil
	}
}

// Runs returns a channel receiving every run as it happens.
func (r *Recorder) Runs() <-chan Run {
	return r.signal
}

// Recorded returns a copy of the runs so far, in execution order.
func (r *Recorder) Recorded() []Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Run(nil), r.runs...)
}

type recordingProcess struct {
	rec  *Recorder
	id   string
	user string
}

func (p *recordingProcess) Execute(ctx context.Context, t ir.ProcessTrigger, rc process.RuntimeContext) error {
	run := Run{ProcessID: p.id, Trigger: t.Name, Source: rc.Source, User: p.user}

	p.rec.mu.Lock()
	p.rec.runs = append(p.rec.runs, run)
	p.rec.mu.Unlock()

	select {
	case p.rec.signal <- run:
	default:
	}

	if p.rec.Failing[p.id] {
		return fmt.Errorf("process %s failed", p.id)
	}
	return nil
}
