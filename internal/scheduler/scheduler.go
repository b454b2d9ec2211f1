// Package scheduler re-sanitizes stored documents after the repair rules change.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/diagramguard/internal/diagram"
	"github.com/rendis/diagramguard/internal/logging"
	"github.com/rendis/diagramguard/internal/store"
	"github.com/rendis/diagramguard/pkg/schema"
)

// DefaultSchedule runs a rescan at the top of every hour.
const DefaultSchedule = "0 * * * *"

// ErrRunInProgress is returned by RunOnce while another run is active.
var ErrRunInProgress = errors.New("rescan already in progress")

// Sanitizer is the part of the pipeline the rescanner drives.
// Satisfied by *diagram.Pipeline.
type Sanitizer interface {
	ProcessSet(ctx context.Context, set *schema.DiagramSet) *schema.DiagramSet
}

// Options configures a Rescanner. Zero values select the defaults.
type Options struct {
	// Schedule is a 5-field cron expression.
	Schedule string
	// BatchSize bounds how many stale documents are loaded per query.
	BatchSize int
	// RulesVersion is the version documents are brought up to.
	RulesVersion int
	Logger       *slog.Logger
}

// Rescanner re-runs the pipeline over stored documents whose rules version
// is older than the current one, starting from their raw candidates.
type Rescanner struct {
	store        store.Store
	sanitizer    Sanitizer
	schedule     cron.Schedule
	batchSize    int
	rulesVersion int
	logger       *slog.Logger
	now          func() time.Time

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRescanner creates a Rescanner, rejecting an unparsable schedule.
func NewRescanner(s store.Store, sanitizer Sanitizer, opts Options) (*Rescanner, error) {
	expr := opts.Schedule
	if expr == "" {
		expr = DefaultSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}

	batch := opts.BatchSize
	if batch <= 0 {
		batch = 50
	}
	version := opts.RulesVersion
	if version <= 0 {
		version = diagram.RulesVersion
	}

	return &Rescanner{
		store:        s,
		sanitizer:    sanitizer,
		schedule:     schedule,
		batchSize:    batch,
		rulesVersion: version,
		logger:       logging.Default(opts.Logger),
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// NextRun returns the first scheduled run after from.
func (r *Rescanner) NextRun(from time.Time) time.Time {
	return r.schedule.Next(from)
}

// Start launches the background loop. It returns an error if already started.
func (r *Rescanner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return fmt.Errorf("rescanner already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.loop(loopCtx, r.done)
	r.logger.Info("rescanner started", slog.Time("next_run", r.NextRun(r.now())))
	return nil
}

func (r *Rescanner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		timer := time.NewTimer(r.NextRun(r.now()).Sub(r.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		n, err := r.RunOnce(ctx)
		switch {
		case errors.Is(err, ErrRunInProgress):
			r.logger.Debug("skipping rescan, previous run still active")
		case err != nil:
			r.logger.Error("rescan failed", slog.Int("rescanned", n), slog.String("error", err.Error()))
		case n > 0:
			r.logger.Info("rescan complete", slog.Int("rescanned", n))
		}
	}
}

// Stop shuts down the background loop and waits for it to exit.
func (r *Rescanner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return nil
	}

	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil

	r.logger.Info("rescanner stopped")
	return nil
}

// RunOnce brings every stale document up to the current rules version and
// reports how many were rewritten. Runs never overlap.
func (r *Rescanner) RunOnce(ctx context.Context) (int, error) {
	if !r.running.CompareAndSwap(false, true) {
		return 0, ErrRunInProgress
	}
	defer r.running.Store(false)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		docs, err := r.store.ListStale(ctx, r.rulesVersion, r.batchSize)
		if err != nil {
			return total, fmt.Errorf("list stale documents: %w", err)
		}
		for _, doc := range docs {
			if err := r.rescan(ctx, doc); err != nil {
				return total, err
			}
			total++
		}
		if len(docs) < r.batchSize {
			return total, nil
		}
	}
}

func (r *Rescanner) rescan(ctx context.Context, doc *store.Document) error {
	ctx = logging.WithDocumentID(ctx, doc.ID)
	logger := logging.LogWith(ctx, r.logger)

	candidates := doc.Candidates
	if candidates == nil {
		candidates = schema.NewDiagramSet()
	}
	previous := doc.RulesVersion

	doc.Accepted = r.sanitizer.ProcessSet(ctx, candidates)
	doc.RulesVersion = r.rulesVersion
	if err := r.store.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("save document %q: %w", doc.ID, err)
	}

	detail, err := json.Marshal(map[string]int{"previous_version": previous})
	if err != nil {
		return fmt.Errorf("marshal rescan detail of %q: %w", doc.ID, err)
	}
	event := &store.Event{
		DocumentID:   doc.ID,
		Type:         store.EventRescanned,
		RulesVersion: r.rulesVersion,
		Accepted:     doc.Accepted.Len(),
		Dropped:      candidates.Len() - doc.Accepted.Len(),
		Detail:       detail,
	}
	if err := r.store.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("record rescan of %q: %w", doc.ID, err)
	}

	logger.Debug("document rescanned",
		slog.Int("previous_version", previous),
		slog.Int("accepted", event.Accepted),
		slog.Int("dropped", event.Dropped),
	)
	return nil
}
