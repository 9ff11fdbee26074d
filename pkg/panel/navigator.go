// Package panel owns the single visual surface of a session and the wizard state machine
// that decides which view it shows.
//
// Every transition disposes the current surface, together with every listener and timer
// registered for it, before the next one is created. Asynchronous results are tagged with
// the generation they were started in and are dropped if the navigator has moved on.
package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"codecoach/pkg/gateway"
	"codecoach/pkg/host"
	"codecoach/pkg/logx"
	"codecoach/pkg/metrics"
	"codecoach/pkg/proto"
	"codecoach/pkg/snapshot"
)

// User-visible wizard texts.
const (
	MsgIssuesFound      = "There are some errors in your code, do you want see AI suggestion?"
	MsgStillWorking     = "The AI is still working on your code. Go back and check again in a moment."
	MsgNothingToAnalyze = "There is no code to analyze. Go back and keep editing."
)

// Analyzer produces the suggestion shown after Progress.
type Analyzer interface {
	Analyze(ctx context.Context, code string) gateway.Result
}

// PollControl is the part of the poller the navigator drives.
type PollControl interface {
	Start(ctx context.Context) bool
	Stop()
}

// Timer is the subset of time.Timer the progress race needs.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// TimerFactory creates the progress countdown.
type TimerFactory func(d time.Duration) Timer

type realTimer struct{ *time.Timer }

func (t realTimer) C() <-chan time.Time { return t.Timer.C }

// NewRealTimer wraps time.NewTimer.
func NewRealTimer(d time.Duration) Timer {
	return realTimer{time.NewTimer(d)}
}

// Config wires a Navigator.
type Config struct {
	Host     host.PanelHost
	Poller   PollControl
	Analyzer Analyzer
	Recorder metrics.Recorder
	Title    string
	PageSize int
	MinWait  time.Duration
	MaxWait  time.Duration
	NewTimer TimerFactory // nil uses NewRealTimer

	// Jitter picks the countdown length; nil picks uniformly in [MinWait, MaxWait].
	Jitter func(minWait, maxWait time.Duration) time.Duration

	// OnMessage receives payloads from whichever surface is current.
	OnMessage func(raw json.RawMessage)

	// The hooks below run with the navigator locked and must not call back into it.

	// OnAsked runs once the alert question has reached the alert prompt.
	OnAsked func(snap snapshot.Snapshot)
	// OnLeave runs after every transition out of from, whatever caused it.
	OnLeave func(from, to State)
	// OnPost runs after each message delivered to a surface showing view.
	OnPost func(view State, msg proto.Outbound)
}

// Navigator is safe for concurrent use.
type Navigator struct {
	cfg    Config
	logger *logx.Logger

	mu        sync.Mutex
	state     State
	gen       uint64
	surface   host.Surface
	listeners []host.Cancel
	timer     Timer
	checked   snapshot.Snapshot
	runCtx    context.Context
	runCancel context.CancelFunc

	races sync.WaitGroup
}

// New returns a closed navigator.
func New(cfg Config) *Navigator {
	if cfg.NewTimer == nil {
		cfg.NewTimer = NewRealTimer
	}
	if cfg.Jitter == nil {
		cfg.Jitter = uniformJitter
	}
	if cfg.Title == "" {
		cfg.Title = "CodeCoach"
	}
	cfg.Recorder = metrics.OrNop(cfg.Recorder)
	return &Navigator{
		cfg:    cfg,
		logger: logx.NewLogger("panel"),
		state:  StateClosed,
	}
}

func uniformJitter(minWait, maxWait time.Duration) time.Duration {
	if maxWait <= minWait {
		return minWait
	}
	return minWait + time.Duration(rand.Int64N(int64(maxWait-minWait)+1))
}

// State returns the current state.
func (n *Navigator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Generation returns the current state token.
func (n *Navigator) Generation() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gen
}

// OpenChat shows the chat view, replacing whatever is open.
func (n *Navigator) OpenChat(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ensureRunning(ctx)
	if n.state == StateChat {
		return nil
	}
	return n.enter(StateChat)
}

// OpenWizard shows the monitoring hub and starts the poller, replacing whatever is open.
func (n *Navigator) OpenWizard(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ensureRunning(ctx)
	if n.state == StateDetecting {
		return nil
	}
	return n.enter(StateDetecting)
}

// Alert moves Detecting to Start with the snapshot the poller flagged. It reports whether
// the question was shown. The alert is dropped outside Detecting, and also when ctx (the
// poll run that produced it) has been cancelled: the poller is stopped under n.mu, so a
// cancelled ctx seen here means the run belongs to a Detecting state already left.
func (n *Navigator) Alert(ctx context.Context, snap snapshot.Snapshot) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateDetecting {
		logx.Debug(n.runCtx, "panel", "alert dropped in %s", n.state)
		return false
	}
	if ctx.Err() != nil {
		logx.Debug(n.runCtx, "panel", "alert from a stopped poll run dropped")
		return false
	}
	n.checked = snap
	if err := n.enter(StateStart); err != nil {
		n.logger.Warn("alert: %v", err)
		return false
	}
	if !n.postLocked(proto.AskAnalyzeCode{Text: MsgIssuesFound}) {
		return false
	}
	if n.cfg.OnAsked != nil {
		n.cfg.OnAsked(snap)
	}
	return true
}

// Confirm moves Start to Progress and starts the race between the analysis of the
// flagged snapshot and a randomized countdown.
func (n *Navigator) Confirm(_ context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateStart {
		return fmt.Errorf("%w: confirm in %s", ErrInvalidTransition, n.state)
	}
	if err := n.enter(StateProgress); err != nil {
		return err
	}

	wait := n.cfg.Jitter(n.cfg.MinWait, n.cfg.MaxWait)
	timer := n.cfg.NewTimer(wait)
	n.timer = timer
	n.postLocked(proto.SetProgressTime{Millis: wait.Milliseconds()})

	gen, snap, ctx := n.gen, n.checked, n.runCtx
	n.races.Add(1)
	go n.race(ctx, gen, snap, timer)
	return nil
}

// Decline moves Start back to Detecting.
func (n *Navigator) Decline(_ context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateStart {
		return fmt.Errorf("%w: decline in %s", ErrInvalidTransition, n.state)
	}
	return n.enter(StateDetecting)
}

// Back returns to Detecting from any open state. A race still running for the state
// being left is suppressed.
func (n *Navigator) Back(_ context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.state {
	case StateClosed:
		return fmt.Errorf("%w: back while closed", ErrInvalidTransition)
	case StateDetecting:
		return nil
	}
	return n.enter(StateDetecting)
}

// Close disposes the surface, stops the poller and every timer. Calling it while closed
// is a no-op.
func (n *Navigator) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closeLocked()
}

// Navigate applies a wizard navigation command.
func (n *Navigator) Navigate(ctx context.Context, action proto.Command) error {
	switch action {
	case proto.CmdClose:
		n.Close()
		return nil
	case proto.CmdBack:
		return n.Back(ctx)
	case proto.CmdYes:
		return n.Confirm(ctx)
	case proto.CmdNo:
		return n.Decline(ctx)
	default:
		return fmt.Errorf("%w: %s", proto.ErrUnknownMessage, action)
	}
}

// Post delivers msg to the current surface if it shows view. It reports whether the
// message was delivered.
func (n *Navigator) Post(view State, msg proto.Outbound) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != view {
		return false
	}
	return n.postLocked(msg)
}

// Wait blocks until every race goroutine has returned.
func (n *Navigator) Wait() {
	n.races.Wait()
}

func (n *Navigator) ensureRunning(ctx context.Context) {
	if n.runCtx != nil {
		return
	}
	n.runCtx, n.runCancel = context.WithCancel(context.WithoutCancel(ctx))
}

func (n *Navigator) race(ctx context.Context, gen uint64, snap snapshot.Snapshot, timer Timer) {
	defer n.races.Done()

	if snap.IsEmpty() {
		n.resolve(gen, []string{MsgNothingToAnalyze}, "empty snapshot")
		return
	}

	results := make(chan gateway.Result, 1)
	n.races.Add(1)
	go func() {
		defer n.races.Done()
		defer func() {
			if r := recover(); r != nil {
				n.logger.Error("analysis panicked: %v", r)
				results <- gateway.Failed(fmt.Sprintf("panic: %v", r))
			}
		}()
		results <- n.cfg.Analyzer.Analyze(ctx, snap.Text)
	}()

	select {
	case res := <-results:
		timer.Stop()
		n.resolve(gen, Paginate(res.Render(), n.cfg.PageSize), "analysis "+res.Outcome.String())
	case <-timer.C():
		n.resolve(gen, []string{MsgStillWorking}, "countdown")
	case <-ctx.Done():
	}
}

// resolve shows pages if gen is still the current generation in Progress.
func (n *Navigator) resolve(gen uint64, pages []string, winner string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.gen != gen || n.state != StateProgress {
		logx.Debug(n.runCtx, "panel", "late %s result suppressed (gen %d, now %d in %s)", winner, gen, n.gen, n.state)
		return
	}
	n.logger.Debug("progress race won by %s", winner)
	if err := n.enter(StateSuggestion); err != nil {
		n.logger.Warn("resolve: %v", err)
		return
	}
	n.postLocked(proto.UpdateSuggestion{Pages: pages})
}

// enter performs a checked transition: it releases everything owned by the old state,
// bumps the generation and acquires the new state's surface. n.mu must be held.
func (n *Navigator) enter(to State) error {
	from := n.state
	if err := checkTransition(from, to); err != nil {
		return err
	}

	n.releaseLocked()
	if from == StateDetecting && to != StateDetecting {
		n.cfg.Poller.Stop()
	}

	n.gen++
	n.state = to
	n.cfg.Recorder.ObserveTransition(from.String(), to.String())
	n.logger.DebugState("transition", fmt.Sprintf("%s -> %s", from, to), fmt.Sprintf("gen %d", n.gen))
	if n.cfg.OnLeave != nil {
		n.cfg.OnLeave(from, to)
	}

	if to == StateClosed {
		return nil
	}
	if err := n.acquireLocked(to.View()); err != nil {
		n.state = StateClosed
		n.cfg.Recorder.ObserveTransition(to.String(), StateClosed.String())
		return err
	}
	if to == StateDetecting {
		n.cfg.Poller.Start(n.runCtx)
	}
	return nil
}

func (n *Navigator) acquireLocked(view string) error {
	surface, err := n.cfg.Host.Create(view, n.cfg.Title)
	if err != nil {
		return fmt.Errorf("create %s surface: %w", view, err)
	}
	n.surface = surface
	n.cfg.Recorder.ObserveSurface(view)

	gen := n.gen
	n.listeners = append(n.listeners,
		surface.OnMessage(func(raw json.RawMessage) {
			if n.cfg.OnMessage != nil {
				n.cfg.OnMessage(raw)
			}
		}),
		surface.OnDidDispose(func() { n.hostClosed(gen) }),
	)
	return nil
}

// releaseLocked unregisters listeners before disposing so our own Dispose is not
// mistaken for the user closing the panel.
func (n *Navigator) releaseLocked() {
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	for _, cancel := range n.listeners {
		cancel()
	}
	n.listeners = nil
	if n.surface != nil {
		n.surface.Dispose()
		n.surface = nil
	}
}

func (n *Navigator) hostClosed(gen uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.gen != gen {
		return
	}
	n.logger.Info("surface closed by the editor")
	n.closeLocked()
}

func (n *Navigator) closeLocked() {
	if n.state == StateClosed {
		return
	}
	if err := n.enter(StateClosed); err != nil {
		n.logger.Error("close: %v", err)
	}
	n.checked = snapshot.Snapshot{}
	if n.runCancel != nil {
		n.runCancel()
		n.runCtx, n.runCancel = nil, nil
	}
}

func (n *Navigator) postLocked(msg proto.Outbound) bool {
	if n.surface == nil {
		return false
	}
	if err := n.surface.Post(msg); err != nil {
		n.logger.Warn("post %s to %s: %v", msg.Command(), n.surface.ID(), err)
		return false
	}
	if n.cfg.OnPost != nil {
		n.cfg.OnPost(n.state, msg)
	}
	return true
}
