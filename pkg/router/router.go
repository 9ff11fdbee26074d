// Package router turns user input into gateway calls and outbound messages.
//
// A bare "yes" or "no" is ambiguous: the router attributes it to the single pending
// question held in session state, consuming that question exactly once. A reply with no
// pending question is ordinary chat.
package router

import (
	"context"
	"fmt"
	"strings"

	"codecoach/pkg/gateway"
	"codecoach/pkg/host"
	"codecoach/pkg/logx"
	"codecoach/pkg/panel"
	"codecoach/pkg/proto"
	"codecoach/pkg/session"
	"codecoach/pkg/snapshot"
)

// Inference is the part of the gateway the router calls.
type Inference interface {
	Ask(ctx context.Context, text string) gateway.Result
	Classify(ctx context.Context, code string) (bool, gateway.Result)
	Analyze(ctx context.Context, code string) gateway.Result
	GenerateTests(ctx context.Context, code string, symbols []string) gateway.Result
}

// Emitter delivers a message to the chat surface and reports whether it arrived.
type Emitter interface {
	Emit(msg proto.Outbound) bool
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(msg proto.Outbound) bool

// Emit implements Emitter.
func (f EmitterFunc) Emit(msg proto.Outbound) bool { return f(msg) }

// Router is safe for concurrent use; all mutable state lives in session.State.
type Router struct {
	state  *session.State
	gw     Inference
	editor host.Editor
	out    Emitter
	logger *logx.Logger
}

// New returns a router.
func New(state *session.State, gw Inference, editor host.Editor, out Emitter) *Router {
	return &Router{
		state:  state,
		gw:     gw,
		editor: editor,
		out:    out,
		logger: logx.NewLogger("router"),
	}
}

// Handle routes an inbound chat message. Navigation commands are not handled here.
func (r *Router) Handle(ctx context.Context, msg proto.Inbound) error {
	switch m := msg.(type) {
	case proto.SendMessage:
		return r.OnUserMessage(ctx, m.Text, m.Context)
	case proto.InjectUserCode:
		return r.OnUserMessage(ctx, m.Text, proto.TagNone)
	default:
		return fmt.Errorf("%w: %s is not a chat message", proto.ErrUnknownMessage, msg.Command())
	}
}

// OnUserMessage routes one user turn. First match wins:
//
//  1. "yes" answering a pending test question generates tests for the pending snapshot;
//  2. "yes" answering a pending analysis question analyzes the active (or any visible
//     file-backed) buffer. A reply tagged for the test question while analysis is
//     pending is reported as expired and leaves the analysis question pending;
//  3. "no" with any question pending acknowledges and clears it;
//  4. anything else, including "yes"/"no" with nothing pending, is chat.
func (r *Router) OnUserMessage(ctx context.Context, text string, tag proto.Tag) (err error) {
	defer r.recoverPanic(&err)

	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes":
		if q, ok := r.state.TakeIf(session.AwaitingTest); ok {
			return r.generateTests(ctx, q)
		}
		if tag == proto.TagTest && r.state.Pending() == session.AwaitingAnalysis {
			r.notify(proto.ChatText{Text: MsgExpiredQuestion})
			return ErrExpiredQuestion
		}
		if _, ok := r.state.TakeIf(session.AwaitingAnalysis); ok {
			return r.analyze(ctx)
		}
	case "no":
		if q := r.state.Take(); q.Kind != session.PendingNone {
			logx.DebugFlow(ctx, "router", "declined", q.Kind.String())
			r.notify(proto.ChatText{Text: MsgAcknowledged})
			return nil
		}
	}
	return r.chat(ctx, text)
}

// OnSave offers test generation when a saved file declares routines that the
// last-analyzed snapshot did not. The question stays pending only if it reached the chat
// surface; it is made pending first so that a chat closed right after delivery withdraws
// it.
func (r *Router) OnSave(ctx context.Context, buf host.Buffer) error {
	if buf == nil || !buf.FileBacked() {
		return ErrNoActionableChange
	}
	snap, symbols := r.state.SaveOffer(buf.Text())
	if len(symbols) == 0 {
		logx.Debug(ctx, "router", "save of %s: no new routines", buf.URI())
		return ErrNoActionableChange
	}

	ask := proto.AskGenerateTest{Text: fmt.Sprintf(MsgOfferTests, strings.Join(symbols, ", "))}
	prev := r.state.AskTest(snap, symbols)
	if !r.out.Emit(ask) {
		r.state.Withdraw(session.AwaitingTest)
		logx.Debug(ctx, "router", "test offer for %v not delivered: chat is not open", symbols)
		return nil
	}
	if prev != session.PendingNone {
		r.logger.Info("test offer replaced pending %s", prev)
	}
	return nil
}

// CheckCode classifies the current buffer on demand. Problems turn into an analysis
// question; a clean result is reported as such.
func (r *Router) CheckCode(ctx context.Context) (err error) {
	defer r.recoverPanic(&err)

	buf, ok := r.locateBuffer()
	if !ok {
		r.notify(proto.ChatText{Text: MsgNoActiveBuffer})
		return ErrNoActiveBuffer
	}
	r.state.Capture(buf.Text())

	problematic, res := r.gw.Classify(ctx, buf.Text())
	if !res.OK() {
		r.notify(proto.ChatText{Text: res.Render()})
		return fmt.Errorf("%w: %s", ErrInferenceUnavailable, res.Reason)
	}
	if !problematic {
		r.notify(proto.ChatText{Text: MsgNoErrors})
		return nil
	}
	r.OfferAnalysis(ctx)
	return nil
}

// OfferAnalysis asks whether to analyze the current code. It reports whether the question
// reached the chat surface and is now pending.
func (r *Router) OfferAnalysis(_ context.Context) bool {
	prev := r.state.AskAnalysis()
	if !r.out.Emit(proto.AskAnalyzeCode{Text: panel.MsgIssuesFound}) {
		r.state.Withdraw(session.AwaitingAnalysis)
		r.editor.ShowMessage(panel.MsgIssuesFound + " Open the chat to answer.")
		return false
	}
	if prev != session.PendingNone {
		r.logger.Info("analysis offer replaced pending %s", prev)
	}
	return true
}

// SendSelection prefills the chat with the selected text.
func (r *Router) SendSelection(_ context.Context) error {
	if _, ok := r.editor.ActiveBuffer(); !ok {
		r.notify(proto.ChatText{Text: MsgNoActiveBuffer})
		return ErrNoActiveBuffer
	}
	selection := r.editor.Selection()
	if strings.TrimSpace(selection) == "" {
		r.notify(proto.ChatText{Text: MsgEmptySelection})
		return ErrEmptySelection
	}
	r.notify(proto.InjectUserCode{Text: selection})
	return nil
}

// SendCurrentFile prefills the chat with the whole active buffer.
func (r *Router) SendCurrentFile(_ context.Context) error {
	buf, ok := r.editor.ActiveBuffer()
	if !ok {
		r.notify(proto.ChatText{Text: MsgNoActiveBuffer})
		return ErrNoActiveBuffer
	}
	if strings.TrimSpace(buf.Text()) == "" {
		r.notify(proto.ChatText{Text: MsgEmptyBuffer})
		return ErrEmptyBuffer
	}
	r.notify(proto.InjectUserCode{Text: buf.Text()})
	return nil
}

// generateTests runs the test path for a consumed test question. The symbol list is
// recomputed from the pending snapshot rather than trusted from the save.
func (r *Router) generateTests(ctx context.Context, q session.Question) error {
	if q.Snapshot.IsEmpty() {
		r.notify(proto.ChatText{Text: MsgStaleSnapshot})
		return ErrStaleSnapshot
	}
	symbols := snapshot.DiffNewSymbols(q.Snapshot, r.state.LastAnalyzed())
	if len(symbols) == 0 {
		r.notify(proto.ChatText{Text: MsgNoNewFunctions})
		return ErrNoActionableChange
	}

	logx.DebugFlow(ctx, "router", "tests", "requested", strings.Join(symbols, ","))
	res := r.gw.GenerateTests(ctx, q.Snapshot.Text, symbols)
	if !res.OK() {
		r.notify(proto.ChatText{Text: res.Render()})
		return fmt.Errorf("%w: %s", ErrInferenceUnavailable, res.Reason)
	}
	r.notify(proto.DisplayTest{Text: res.Text})
	r.state.MarkAnalyzed(q.Snapshot)
	return nil
}

func (r *Router) analyze(ctx context.Context) error {
	buf, ok := r.locateBuffer()
	if !ok {
		r.notify(proto.ChatText{Text: MsgNoActiveBuffer})
		return ErrNoActiveBuffer
	}
	res := r.gw.Analyze(ctx, buf.Text())
	r.notify(proto.ChatText{Text: res.Render()})
	if !res.OK() {
		return fmt.Errorf("%w: %s", ErrInferenceUnavailable, res.Reason)
	}
	return nil
}

func (r *Router) chat(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	res := r.gw.Ask(ctx, text)
	r.notify(proto.ChatText{Text: res.Render()})
	if !res.OK() {
		return fmt.Errorf("%w: %s", ErrInferenceUnavailable, res.Reason)
	}
	return nil
}

// locateBuffer prefers the focused buffer and falls back to any visible file-backed one.
func (r *Router) locateBuffer() (host.Buffer, bool) {
	if buf, ok := r.editor.ActiveBuffer(); ok && buf.FileBacked() && buf.Text() != "" {
		return buf, true
	}
	return host.FirstFileBacked(r.editor.VisibleBuffers())
}

// notify emits msg to the chat, falling back to an editor notification for plain text.
func (r *Router) notify(msg proto.Outbound) {
	if r.out.Emit(msg) {
		return
	}
	if text, ok := msg.(proto.ChatText); ok {
		r.editor.ShowMessage(text.Text)
		return
	}
	r.logger.Debug("dropped %s: chat is not open", msg.Command())
}

func (r *Router) recoverPanic(err *error) {
	if rec := recover(); rec != nil {
		r.logger.Error("recovered panic: %v", rec)
		r.state.Take()
		// the emitter itself may be what panicked
		r.editor.ShowMessage(MsgInternal)
		*err = fmt.Errorf("%w: %v", ErrPanic, rec)
	}
}
