// Package coach wires one editor connection's components into a Session.
//
// A Session owns exactly one of each: conversation state, poller, panel navigator and
// router. Nothing is shared between sessions except the inference gateway, which is
// stateless.
package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"codecoach/pkg/config"
	"codecoach/pkg/host"
	"codecoach/pkg/logx"
	"codecoach/pkg/metrics"
	"codecoach/pkg/panel"
	"codecoach/pkg/persistence"
	"codecoach/pkg/poller"
	"codecoach/pkg/proto"
	"codecoach/pkg/router"
	"codecoach/pkg/session"
	"codecoach/pkg/snapshot"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Transcript persists the turns of a session. *persistence.Store implements it.
type Transcript interface {
	CreateSession(ctx context.Context, sessionID, origin, model string) error
	RecordTurn(ctx context.Context, sessionID, direction, kind, text string) error
	EndSession(ctx context.Context, sessionID, status string) error
}

// Options wires a Session. Editor, Panels and Inference are required.
type Options struct {
	ID         string // empty generates a UUID
	Origin     string
	Model      string
	Editor     host.Editor
	Panels     host.PanelHost
	Inference  router.Inference
	Config     config.Config
	Recorder   metrics.Recorder
	Transcript Transcript

	// Test hooks; nil uses real clocks and uniform jitter.
	NewTicker poller.TickerFactory
	NewTimer  panel.TimerFactory
	Jitter    func(minWait, maxWait time.Duration) time.Duration
}

// Session is the controller for one editor connection. It is safe for concurrent use.
type Session struct {
	id         string
	ctx        context.Context
	editor     host.Editor
	recorder   metrics.Recorder
	transcript Transcript
	logger     *logx.Logger

	state  *session.State
	poller *poller.Poller
	nav    *panel.Navigator
	router *router.Router

	mu         sync.Mutex
	closed     bool
	cancelSave host.Cancel
}

// New builds a session and subscribes it to the editor's save events.
func New(ctx context.Context, opts Options) (*Session, error) {
	if opts.Editor == nil || opts.Panels == nil || opts.Inference == nil {
		return nil, fmt.Errorf("coach: editor, panels and inference are required")
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Origin == "" {
		opts.Origin = persistence.OriginBridge
	}
	if opts.Config.ConfigVersion == 0 {
		opts.Config = config.DefaultConfig()
	}

	s := &Session{
		id:         opts.ID,
		ctx:        logx.WithSessionID(context.WithoutCancel(ctx), opts.ID),
		editor:     opts.Editor,
		recorder:   metrics.OrNop(opts.Recorder),
		transcript: opts.Transcript,
		logger:     logx.NewLogger("coach").With(opts.ID[:min(8, len(opts.ID))]),
		state:      session.New(),
	}

	s.poller = poller.New(poller.Config{
		Interval:   opts.Config.Poller.Interval(),
		Sample:     s.sample,
		Classifier: opts.Inference,
		OnAlert:    s.onAlert,
		Recorder:   s.recorder,
		NewTicker:  opts.NewTicker,
	})

	minWait, maxWait := opts.Config.Wizard.ProgressRange()
	s.nav = panel.New(panel.Config{
		Host:      opts.Panels,
		Poller:    s.poller,
		Analyzer:  opts.Inference,
		Recorder:  s.recorder,
		PageSize:  opts.Config.Wizard.PageSize,
		MinWait:   minWait,
		MaxWait:   maxWait,
		NewTimer:  opts.NewTimer,
		Jitter:    opts.Jitter,
		OnMessage: s.onPanelMessage,
		OnAsked:   s.onAsked,
		OnLeave:   s.onLeave,
		OnPost:    s.onPost,
	})

	s.router = router.New(s.state, opts.Inference, opts.Editor, router.EmitterFunc(s.emit))
	s.cancelSave = opts.Editor.OnSave(func(buf host.Buffer) {
		if err := s.HandleSave(s.ctx, buf); err != nil && !errors.Is(err, router.ErrNoActionableChange) {
			s.logger.Warn("save: %v", err)
		}
	})

	if s.transcript != nil {
		if err := s.transcript.CreateSession(s.ctx, s.id, opts.Origin, opts.Model); err != nil {
			s.logger.Warn("transcript disabled: %v", err)
			s.transcript = nil
		}
	}
	s.recorder.SessionOpened()
	s.logger.Info("🧭 Session opened (%s)", opts.Origin)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// PanelState returns the navigator's current state.
func (s *Session) PanelState() panel.State { return s.nav.State() }

// Pending returns the unanswered question, if any.
func (s *Session) Pending() session.Pending { return s.state.Pending() }

// OpenChat shows the chat panel.
func (s *Session) OpenChat(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.nav.OpenChat(s.scope(ctx))
}

// OpenWizard shows the analysis hub and starts background monitoring.
func (s *Session) OpenWizard(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.nav.OpenWizard(s.scope(ctx))
}

// HandleSave feeds a document save into the test offer path.
func (s *Session) HandleSave(ctx context.Context, buf host.Buffer) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.router.OnSave(s.scope(ctx), buf)
}

// SendSelection opens the chat and prefills it with the selected text.
func (s *Session) SendSelection(ctx context.Context) error {
	if err := s.OpenChat(ctx); err != nil {
		return err
	}
	return s.router.SendSelection(s.scope(ctx))
}

// SendCurrentFile opens the chat and prefills it with the active buffer.
func (s *Session) SendCurrentFile(ctx context.Context) error {
	if err := s.OpenChat(ctx); err != nil {
		return err
	}
	return s.router.SendCurrentFile(s.scope(ctx))
}

// CheckNow classifies the current buffer immediately.
func (s *Session) CheckNow(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.router.CheckCode(s.scope(ctx))
}

// HandleInbound decodes and dispatches one payload from the current panel.
// Unknown commands are logged and dropped.
func (s *Session) HandleInbound(ctx context.Context, raw []byte) error {
	if s.isClosed() {
		return ErrClosed
	}
	ctx = s.scope(ctx)
	msg, err := proto.DecodeInbound(raw)
	if err != nil {
		s.logger.Warn("dropped inbound payload: %v", err)
		return err
	}
	s.record(ctx, persistence.DirectionIn, msg.Command(), inboundText(msg))

	switch m := msg.(type) {
	case proto.SendMessage, proto.InjectUserCode:
		return s.router.Handle(ctx, m)
	case proto.Navigate:
		return s.navigate(ctx, m.Action)
	default:
		return fmt.Errorf("%w: %T", proto.ErrUnknownMessage, msg)
	}
}

// Close tears the session down: panel, poller, save listener and pending question.
// It waits for background work to return and is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancelSave
	s.cancelSave = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.nav.Close()
	s.poller.Stop()
	s.nav.Wait()
	s.poller.Wait()
	s.state.Reset()

	if s.transcript != nil {
		if err := s.transcript.EndSession(s.ctx, s.id, persistence.SessionStatusClosed); err != nil {
			s.logger.Warn("end transcript: %v", err)
		}
	}
	s.recorder.SessionClosed()
	s.logger.Info("Session closed")
}

// navigate applies a panel button. In the chat, yes/no are ordinary replies. In the alert
// prompt every button leaves Start, and onLeave consumes the question it asked.
func (s *Session) navigate(ctx context.Context, action proto.Command) error {
	if s.nav.State() == panel.StateChat && (action == proto.CmdYes || action == proto.CmdNo) {
		return s.router.OnUserMessage(ctx, string(action), proto.TagNone)
	}
	return s.nav.Navigate(ctx, action)
}

// sample prefers the focused file and falls back to the last snapshot taken.
func (s *Session) sample() (snapshot.Snapshot, bool) {
	if buf, ok := s.editor.ActiveBuffer(); ok && buf.FileBacked() && buf.Text() != "" {
		return s.state.Capture(buf.Text()), true
	}
	last := s.state.LastSeen()
	return last, !last.IsEmpty()
}

func (s *Session) onAlert(ctx context.Context, snap snapshot.Snapshot) {
	if !s.nav.Alert(ctx, snap) {
		logx.Debug(ctx, "coach", "alert for snapshot #%d not shown", snap.Seq)
	}
}

// onAsked makes the alert question pending. It runs under the navigator's lock, so the
// question cannot outlive the prompt that shows it.
func (s *Session) onAsked(snap snapshot.Snapshot) {
	s.state.SetLastChecked(snap)
	if prev := s.state.AskAnalysis(); prev != session.PendingNone {
		s.logger.Info("alert replaced pending %s", prev)
	}
}

// onLeave drops a question whose surface is gone. A reply typed later is chat.
func (s *Session) onLeave(from, _ panel.State) {
	switch from {
	case panel.StateStart:
		if _, ok := s.state.TakeIf(session.AwaitingAnalysis); ok {
			logx.Debug(s.ctx, "coach", "alert question withdrawn")
		}
	case panel.StateChat:
		if q := s.state.Take(); q.Kind != session.PendingNone {
			logx.Debug(s.ctx, "coach", "%s withdrawn with the chat", q.Kind)
		}
	}
}

// onPost records every message that reached a surface, whichever component sent it.
func (s *Session) onPost(_ panel.State, msg proto.Outbound) {
	s.record(s.ctx, persistence.DirectionOut, msg.Command(), outboundText(msg))
}

func (s *Session) onPanelMessage(raw json.RawMessage) {
	if err := s.HandleInbound(s.ctx, raw); err != nil {
		logx.Debug(s.ctx, "coach", "panel message: %v", err)
	}
}

// emit delivers router output to the chat view only.
func (s *Session) emit(msg proto.Outbound) bool {
	return s.nav.Post(panel.StateChat, msg)
}

func (s *Session) record(ctx context.Context, direction string, cmd proto.Command, text string) {
	if s.transcript == nil {
		return
	}
	kind := string(cmd)
	if kind == "" {
		kind = "chatText"
	}
	if err := s.transcript.RecordTurn(ctx, s.id, direction, kind, text); err != nil {
		s.logger.Warn("record %s turn: %v", kind, err)
	}
}

func (s *Session) scope(ctx context.Context) context.Context {
	if ctx == nil {
		return s.ctx
	}
	if logx.SessionIDFrom(ctx) == "" {
		return logx.WithSessionID(ctx, s.id)
	}
	return ctx
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func inboundText(msg proto.Inbound) string {
	switch m := msg.(type) {
	case proto.SendMessage:
		return m.Text
	case proto.InjectUserCode:
		return m.Text
	}
	return ""
}

func outboundText(msg proto.Outbound) string {
	switch m := msg.(type) {
	case proto.ChatText:
		return m.Text
	case proto.DisplayTest:
		return m.Text
	case proto.AskGenerateTest:
		return m.Text
	case proto.AskAnalyzeCode:
		return m.Text
	case proto.InjectUserCode:
		return m.Text
	case proto.SetProgressTime:
		return strconv.FormatInt(m.Millis, 10)
	case proto.UpdateSuggestion:
		return strings.Join(m.Pages, "")
	}
	return ""
}
