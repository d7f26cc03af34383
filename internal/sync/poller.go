package sync

import (
	"context"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/provider"
	"github.com/nhle/tempmail/internal/store"
)

// SyncState represents the current state of inbox polling.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "syncing"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// SyncStatus holds the polling state for the bound session.
type SyncStatus struct {
	Address  string
	State    SyncState
	LastSync time.Time
	Error    error
}

// SyncResultMsg is a tea.Msg sent when a poll completes.
type SyncResultMsg struct {
	PollID  string
	Address string
	Inbox   model.Inbox
	Added   int
	Error   error
}

// ErrNotBound is returned by PollOnce when no session is bound.
var ErrNotBound = errors.New("no session bound to the synchronizer")

const (
	// DefaultInterval is the polling period when none is configured.
	DefaultInterval = 15 * time.Second

	// fetchTimeout is the maximum time allowed for a single list call.
	fetchTimeout = 30 * time.Second

	// sinceSeq is always sent as zero: the provider returns its full
	// current view and deduplication happens client side.
	sinceSeq = 0
)

// Options configures a Synchronizer.
type Options struct {
	Interval           time.Duration
	SystemSender       string
	RefreshMinInterval time.Duration
	Logger             *zap.SugaredLogger
}

// pollTask is one session-bound polling loop. Cancelling it is the only
// way polling stops, whether for teardown or a session change.
type pollTask struct {
	generation uint64
	session    model.Session
	ctx        context.Context
	cancel     context.CancelFunc
	looping    bool
	triggerCh  chan struct{}
	done       chan struct{}
}

// Synchronizer keeps the cached inbox in step with the provider by
// polling the bound session on a fixed interval.
type Synchronizer struct {
	gateway      provider.MessageLister
	store        store.InboxStore
	logger       *zap.SugaredLogger
	interval     time.Duration
	systemSender string
	limiter      *rate.Limiter
	resultCh     chan SyncResultMsg

	mu         gosync.Mutex
	task       *pollTask
	generation uint64
	status     SyncStatus

	// mergeMu serializes load-merge-save and generation changes so a
	// stale poll can never write into a newer session's cache.
	mergeMu gosync.Mutex
}

// New creates a Synchronizer that reads from gateway and persists to s.
func New(gateway provider.MessageLister, s store.InboxStore, opts Options) *Synchronizer {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	limit := rate.Inf
	if opts.RefreshMinInterval > 0 {
		limit = rate.Every(opts.RefreshMinInterval)
	}

	return &Synchronizer{
		gateway:      gateway,
		store:        s,
		logger:       logger,
		interval:     interval,
		systemSender: opts.SystemSender,
		limiter:      rate.NewLimiter(limit, 1),
		resultCh:     make(chan SyncResultMsg, 16),
	}
}

// SessionChanged rebinds polling to sess. Any running loop is cancelled
// first; a zero session leaves polling stopped. A valid session gets an
// immediate poll followed by one every interval.
func (s *Synchronizer) SessionChanged(sess model.Session) {
	s.bind(sess, true)
}

// Bind attaches sess without starting the loop, cancelling any previous
// task. Use PollOnce to poll a session bound this way.
func (s *Synchronizer) Bind(sess model.Session) {
	s.bind(sess, false)
}

func (s *Synchronizer) bind(sess model.Session, loop bool) {
	s.Stop()

	if !sess.Valid() {
		return
	}

	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.generation++
	task := &pollTask{
		generation: s.generation,
		session:    sess,
		ctx:        ctx,
		cancel:     cancel,
		looping:    loop,
		triggerCh:  make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	s.task = task
	s.status = SyncStatus{Address: sess.Address, State: SyncIdle}

	if loop {
		go s.run(task)
	}
}

// Stop cancels the bound task and waits for its loop to exit. It is safe
// to call when nothing is bound.
func (s *Synchronizer) Stop() {
	s.mergeMu.Lock()
	s.mu.Lock()
	task := s.task
	s.task = nil
	s.generation++
	s.status = SyncStatus{}
	s.mu.Unlock()
	s.mergeMu.Unlock()

	if task == nil {
		return
	}
	task.cancel()
	if task.looping {
		<-task.done
	}
}

// Refresh requests an immediate poll of the bound session. Requests
// faster than the configured minimum interval are dropped. It reports
// whether a poll was scheduled.
func (s *Synchronizer) Refresh() bool {
	s.mu.Lock()
	task := s.task
	s.mu.Unlock()

	if task == nil || !s.limiter.Allow() {
		return false
	}
	select {
	case task.triggerCh <- struct{}{}:
	default:
		// A poll is already pending.
	}
	return true
}

// PollOnce performs a single poll of the bound session in the calling
// goroutine and returns the merged inbox. Unlike loop polls it returns
// the failure to the caller; the cache is left untouched on error.
func (s *Synchronizer) PollOnce(ctx context.Context) (SyncResultMsg, error) {
	s.mu.Lock()
	task := s.task
	s.mu.Unlock()

	if task == nil {
		return SyncResultMsg{}, ErrNotBound
	}
	res := s.poll(ctx, task)
	return res, res.Error
}

// Status returns the current polling status.
func (s *Synchronizer) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Inbox returns the cached inbox of the bound session.
func (s *Synchronizer) Inbox(ctx context.Context) (model.Inbox, error) {
	return s.store.LoadInbox(ctx)
}

// run is the polling loop for a single task.
func (s *Synchronizer) run(task *pollTask) {
	defer close(task.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.deliver(s.poll(task.ctx, task))

	for {
		select {
		case <-task.ctx.Done():
			return
		case <-ticker.C:
			s.deliver(s.poll(task.ctx, task))
		case <-task.triggerCh:
			s.deliver(s.poll(task.ctx, task))
		}
	}
}

// poll lists the provider's messages, merges them into the cache and
// persists the result. Failures leave the cache as it was.
func (s *Synchronizer) poll(ctx context.Context, task *pollTask) SyncResultMsg {
	pollID := uuid.NewString()
	res := SyncResultMsg{PollID: pollID, Address: task.session.Address}

	if !s.isCurrent(task) {
		res.Error = context.Canceled
		return res
	}
	s.setStatus(task, SyncRunning, nil)

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	list, err := s.gateway.ListNewMessages(fetchCtx, task.session.Token, sinceSeq)
	if err != nil {
		res.Error = err
		if !s.isCurrent(task) {
			res.Error = context.Canceled
			return res
		}
		if ctx.Err() != nil {
			return res
		}
		s.logger.Warnw("inbox poll failed",
			"poll_id", pollID,
			"address", task.session.Address,
			"error", err,
		)
		s.setStatus(task, SyncError, err)
		return res
	}

	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	if !s.isCurrent(task) {
		s.logger.Debugw("discarding poll for replaced session",
			"poll_id", pollID,
			"address", task.session.Address,
		)
		res.Error = context.Canceled
		return res
	}

	cache, err := s.store.LoadInbox(ctx)
	if err != nil {
		res.Error = errors.Wrap(err, "loading cached inbox")
		s.logger.Errorw("inbox poll failed", "poll_id", pollID, "error", res.Error)
		s.setStatus(task, SyncError, res.Error)
		return res
	}

	merged, added := Merge(cache, list.Messages, s.systemSender)
	if added > 0 {
		if err := s.store.SaveInbox(ctx, merged); err != nil {
			res.Error = errors.Wrap(err, "saving inbox")
			s.logger.Errorw("inbox poll failed", "poll_id", pollID, "error", res.Error)
			s.setStatus(task, SyncError, res.Error)
			return res
		}
	}

	s.logger.Debugw("inbox poll complete",
		"poll_id", pollID,
		"address", task.session.Address,
		"received", len(list.Messages),
		"added", added,
		"cached", len(merged),
	)
	s.setStatus(task, SyncIdle, nil)

	res.Inbox = merged
	res.Added = added
	return res
}

// isCurrent reports whether task is still the bound task.
func (s *Synchronizer) isCurrent(task *pollTask) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task == task && s.generation == task.generation
}

// setStatus updates the status if task is still bound.
func (s *Synchronizer) setStatus(task *pollTask, state SyncState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.task != task {
		return
	}
	s.status.State = state
	s.status.Error = err
	if state == SyncIdle && err == nil {
		s.status.LastSync = time.Now()
	}
}

// deliver sends a loop result without blocking. Results of cancelled
// polls are not delivered.
func (s *Synchronizer) deliver(msg SyncResultMsg) {
	if errors.Is(msg.Error, context.Canceled) {
		return
	}
	select {
	case s.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next loop poll
// result. Call it again after each SyncResultMsg to keep listening.
func (s *Synchronizer) WaitForNextResult() tea.Cmd {
	return func() tea.Msg {
		return <-s.resultCh
	}
}

// Results exposes loop poll results for non-tea consumers.
func (s *Synchronizer) Results() <-chan SyncResultMsg {
	return s.resultCh
}
