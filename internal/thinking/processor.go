package thinking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"seqthink/internal/logging"
)

// StatusFailed is the status value of every failure response.
const StatusFailed = "failed"

// Snapshot is the status returned after a step is stored.
type Snapshot struct {
	ThoughtNumber        int      `json:"thoughtNumber"`
	TotalThoughts        int      `json:"totalThoughts"`
	NextThoughtNeeded    bool     `json:"nextThoughtNeeded"`
	Branches             []string `json:"branches"`
	ThoughtHistoryLength int      `json:"thoughtHistoryLength"`
}

// Failure is the response shape for rejected or failed steps.
type Failure struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

// Response carries exactly one of Snapshot or Failure.
type Response struct {
	Snapshot *Snapshot
	Failure  *Failure
}

// Failed reports whether the response is a failure.
func (r Response) Failed() bool {
	return r.Failure != nil
}

// MarshalJSON emits whichever side is set.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Failure != nil {
		return json.Marshal(r.Failure)
	}
	if r.Snapshot != nil {
		return json.Marshal(r.Snapshot)
	}
	return nil, errors.New("empty thinking response")
}

func failure(err error) Response {
	return Response{Failure: &Failure{Error: err.Error(), Status: StatusFailed}}
}

// Recorder receives every accepted step after it has been stored.
// seq is the step's 1-based position in the history.
type Recorder interface {
	RecordStep(ctx context.Context, seq int, step Step) error
}

// Option configures a Processor.
type Option func(*Processor)

// WithRecorder attaches a sink for accepted steps.
func WithRecorder(r Recorder) Option {
	return func(p *Processor) { p.recorder = r }
}

// WithFormatter sets the formatter used when rendering thoughts to the log.
func WithFormatter(f *Formatter) Option {
	return func(p *Processor) { p.formatter = f }
}

// WithRenderThoughts toggles rendering of each accepted thought to the log.
func WithRenderThoughts(enabled bool) Option {
	return func(p *Processor) { p.render.Store(enabled) }
}

// Processor validates, normalizes and records steps against one Store.
// Calls are serialized so each step appears atomic to concurrent callers.
type Processor struct {
	mu    sync.Mutex
	store *Store

	formatter *Formatter
	render    atomic.Bool
	recorder  Recorder
}

// NewProcessor creates a processor over a fresh store.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		store:     NewStore(),
		formatter: NewFormatter(nil),
	}
	p.render.Store(true)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetRenderThoughts toggles thought rendering at runtime.
func (p *Processor) SetRenderThoughts(enabled bool) {
	p.render.Store(enabled)
}

// RenderThoughts reports whether accepted thoughts are rendered to the log.
func (p *Processor) RenderThoughts() bool {
	return p.render.Load()
}

// Handle decodes raw tool arguments and processes them. Every outcome,
// including malformed input and internal faults, becomes a Response.
func (p *Processor) Handle(ctx context.Context, raw json.RawMessage) Response {
	in, err := DecodeStepInput(raw)
	if err != nil {
		stepsTotal.WithLabelValues(resultRejected).Inc()
		logging.Get(logging.CategoryThinking).Warn("Rejected thought: %v", err)
		return failure(err)
	}

	snap, err := p.Process(ctx, in)
	if err != nil {
		return failure(err)
	}
	return Response{Snapshot: &snap}
}

// Process validates and stores one step and returns the resulting snapshot.
// A *ValidationError means nothing was stored.
func (p *Processor) Process(ctx context.Context, in *StepInput) (Snapshot, error) {
	log := logging.Get(logging.CategoryThinking)

	if in == nil {
		in = &StepInput{}
	}
	step, err := in.Validate()
	if err != nil {
		stepsTotal.WithLabelValues(resultRejected).Inc()
		log.Warn("Rejected thought: %v", err)
		return Snapshot{}, err
	}

	step = normalize(step)

	snap, err := p.apply(step)
	if err != nil {
		stepsTotal.WithLabelValues(resultFailed).Inc()
		log.Error("Error processing thought: %v", err)
		return Snapshot{}, err
	}

	stepsTotal.WithLabelValues(resultAccepted).Inc()
	if step.Revision() {
		revisionsTotal.Inc()
	}

	if p.render.Load() && p.formatter != nil {
		log.Info("\n%s", p.formatter.Format(step))
	}
	log.Debug("Stored thought %d/%d (history=%d, branches=%d)",
		snap.ThoughtNumber, snap.TotalThoughts, snap.ThoughtHistoryLength, len(snap.Branches))

	if p.recorder != nil {
		if err := p.recorder.RecordStep(ctx, snap.ThoughtHistoryLength, step); err != nil {
			logging.Get(logging.CategoryJournal).Warn("Failed to record thought %d: %v", snap.ThoughtHistoryLength, err)
		}
	}

	return snap, nil
}

// apply mutates the store and builds the snapshot under the lock.
func (p *Processor) apply(step Step) (snap Snapshot, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error processing thought: %v", r)
		}
	}()

	p.store.Append(step)
	if step.Branched() {
		p.store.AppendToBranch(*step.BranchID, step)
	}

	snap = Snapshot{
		ThoughtNumber:        step.ThoughtNumber,
		TotalThoughts:        step.TotalThoughts,
		NextThoughtNeeded:    step.NextThoughtNeeded,
		Branches:             p.store.BranchIDs(),
		ThoughtHistoryLength: p.store.HistoryLength(),
	}

	historyLength.Set(float64(snap.ThoughtHistoryLength))
	branchCount.Set(float64(len(snap.Branches)))
	return snap, nil
}

// normalize raises the estimated total to the step's index when the
// process has run past its estimate.
func normalize(step Step) Step {
	if step.ThoughtNumber > step.TotalThoughts {
		step.TotalThoughts = step.ThoughtNumber
	}
	return step
}

// HistoryLength returns the current history length.
func (p *Processor) HistoryLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.HistoryLength()
}

// BranchIDs returns the known branch ids in creation order.
func (p *Processor) BranchIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.BranchIDs()
}

// History returns a copy of the full history.
func (p *Processor) History() []Step {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.History()
}

// Branch returns a copy of the steps filed under id.
func (p *Processor) Branch(id string) []Step {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Branch(id)
}
