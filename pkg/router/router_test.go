package router

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codecoach/internal/mocks"
	"codecoach/pkg/config"
	"codecoach/pkg/gateway"
	"codecoach/pkg/host"
	"codecoach/pkg/panel"
	"codecoach/pkg/proto"
	"codecoach/pkg/session"
)

type recorder struct {
	mu       sync.Mutex
	closed   bool
	messages []proto.Outbound
}

func (r *recorder) Emit(msg proto.Outbound) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.messages = append(r.messages, msg)
	return true
}

func (r *recorder) all() []proto.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]proto.Outbound(nil), r.messages...)
}

func (r *recorder) byCommand(cmd proto.Command) []proto.Outbound {
	var out []proto.Outbound
	for _, m := range r.all() {
		if m.Command() == cmd {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	router *Router
	state  *session.State
	llm    *mocks.MockLLMClient
	editor *mocks.FakeEditor
	out    *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	llm := mocks.NewMockLLMClient("test-model")
	llm.RespondByOperation(map[string]string{
		"chat":     "chat answer",
		"analyze":  "analysis answer",
		"tests":    "def test_foo():\n    assert foo(1) == 1\n",
		"classify": "ISSUES",
	})
	gw, err := gateway.New(gateway.Options{Client: llm, Inference: config.DefaultConfig().Inference})
	require.NoError(t, err)

	f := &fixture{
		state:  session.New(),
		llm:    llm,
		editor: mocks.NewFakeEditor(),
		out:    &recorder{},
	}
	f.router = New(f.state, gw, f.editor, f.out)
	return f
}

func fileBuffer(text string) host.Buffer {
	return host.StaticBuffer{Path: "file:///work/app.py", Content: text, OnDisk: true}
}

const withoutFoo = "import os\n\ndef main():\n    pass\n"
const withFoo = withoutFoo + "\ndef foo(x):\n    return x\n"

func TestScenarioA_IdenticalSaveAsksNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.state.MarkAnalyzed(f.state.Capture(withFoo))

	err := f.router.OnSave(ctx, fileBuffer(withFoo))
	assert.ErrorIs(t, err, ErrNoActionableChange)
	assert.Empty(t, f.out.byCommand(proto.CmdAskGenerateTest))
	assert.Equal(t, session.PendingNone, f.state.Pending())
	assert.Zero(t, f.llm.CallCount())
}

func TestScenarioB_SaveThenConfirmGeneratesTests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.state.MarkAnalyzed(f.state.Capture(withoutFoo))

	require.NoError(t, f.router.OnSave(ctx, fileBuffer(withFoo)))
	asks := f.out.byCommand(proto.CmdAskGenerateTest)
	require.Len(t, asks, 1)
	assert.Contains(t, asks[0].(proto.AskGenerateTest).Text, "foo")
	assert.Equal(t, session.AwaitingTest, f.state.Pending())

	require.NoError(t, f.router.OnUserMessage(ctx, "yes", proto.TagTest))

	tests := f.out.byCommand(proto.CmdDisplayTest)
	require.Len(t, tests, 1)
	assert.Contains(t, tests[0].(proto.DisplayTest).Text, "test_foo")
	assert.Equal(t, session.PendingNone, f.state.Pending())
	assert.Equal(t, withFoo, f.state.LastAnalyzed().Text)

	calls := f.llm.CallsFor("tests")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[1].Content, "foo")
	assert.NotContains(t, calls[0].Messages[1].Content, "main,", "only new routines are requested")
}

func TestScenarioC_AnalyzeWithoutEditor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.state.AskAnalysis()

	err := f.router.OnUserMessage(ctx, "yes", proto.TagNone)
	assert.ErrorIs(t, err, ErrNoActiveBuffer)
	assert.Equal(t, []proto.Outbound{proto.ChatText{Text: MsgNoActiveBuffer}}, f.out.all())
	assert.Zero(t, f.llm.CallCount())
	assert.Equal(t, session.PendingNone, f.state.Pending())
}

func TestStrayRepliesAreChat(t *testing.T) {
	for _, reply := range []string{"yes", " YES ", "no", "No"} {
		t.Run(reply, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.router.OnUserMessage(context.Background(), reply, proto.TagTest))

			assert.Equal(t, []proto.Outbound{proto.ChatText{Text: "chat answer"}}, f.out.all())
			assert.Len(t, f.llm.CallsFor("chat"), 1)
			assert.Empty(t, f.llm.CallsFor("tests"))
			assert.Empty(t, f.llm.CallsFor("analyze"))
		})
	}
}

func TestPendingContextIsConsumedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.editor.SetActive(fileBuffer(withFoo))
	f.state.AskAnalysis()

	require.NoError(t, f.router.OnUserMessage(ctx, "yes", proto.TagNone))
	require.NoError(t, f.router.OnUserMessage(ctx, "yes", proto.TagNone))

	assert.Len(t, f.llm.CallsFor("analyze"), 1)
	assert.Len(t, f.llm.CallsFor("chat"), 1, "second yes has nothing to answer")
	assert.Equal(t, []proto.Outbound{
		proto.ChatText{Text: "analysis answer"},
		proto.ChatText{Text: "chat answer"},
	}, f.out.all())
}

func TestAnalysisFallsBackToVisibleFile(t *testing.T) {
	f := newFixture(t)
	f.editor.SetActive(host.StaticBuffer{Path: "output:log", Content: "build ok"})
	f.editor.SetVisible(host.StaticBuffer{Path: "output:log", Content: "build ok"}, fileBuffer(withFoo))
	f.state.AskAnalysis()

	require.NoError(t, f.router.OnUserMessage(context.Background(), "yes", proto.TagNone))
	calls := f.llm.CallsFor("analyze")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[1].Content, "def foo")
}

func TestNoClearsPendingQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.state.AskTest(f.state.Capture(withFoo), []string{"foo"})

	require.NoError(t, f.router.OnUserMessage(ctx, "no", proto.TagTest))
	assert.Equal(t, []proto.Outbound{proto.ChatText{Text: MsgAcknowledged}}, f.out.all())
	assert.Equal(t, session.PendingNone, f.state.Pending())
	assert.Zero(t, f.llm.CallCount())
}

func TestTestTagWhileAnalysisPendingIsExpired(t *testing.T) {
	f := newFixture(t)
	f.state.AskAnalysis()

	err := f.router.OnUserMessage(context.Background(), "yes", proto.TagTest)
	assert.ErrorIs(t, err, ErrExpiredQuestion)
	assert.Equal(t, session.AwaitingAnalysis, f.state.Pending(), "analysis question stays answerable")
	assert.Zero(t, f.llm.CallCount())
}

func TestUntaggedYesAnswersPendingTestQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.router.OnSave(ctx, fileBuffer(withFoo)))

	require.NoError(t, f.router.OnUserMessage(ctx, "Yes", proto.TagNone))
	assert.Len(t, f.out.byCommand(proto.CmdDisplayTest), 1)
}

func TestTestPathRecomputesDiff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.router.OnSave(ctx, fileBuffer(withFoo)))

	// tests for the pending snapshot were generated some other way in the meantime
	f.state.MarkAnalyzed(f.state.Capture(withFoo))
	f.state.AskTest(f.state.Capture(withFoo), []string{"foo"})

	err := f.router.OnUserMessage(ctx, "yes", proto.TagTest)
	assert.ErrorIs(t, err, ErrNoActionableChange)
	assert.Equal(t, proto.ChatText{Text: MsgNoNewFunctions}, f.out.all()[len(f.out.all())-1])
	assert.Empty(t, f.llm.CallsFor("tests"))
}

func TestEmptyPendingSnapshotIsStale(t *testing.T) {
	f := newFixture(t)
	f.state.AskTest(f.state.Capture(""), nil)

	err := f.router.OnUserMessage(context.Background(), "yes", proto.TagTest)
	assert.ErrorIs(t, err, ErrStaleSnapshot)
	assert.Equal(t, []proto.Outbound{proto.ChatText{Text: MsgStaleSnapshot}}, f.out.all())
}

func TestTestGenerationFailureKeepsBaseline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.router.OnSave(ctx, fileBuffer(withFoo)))
	f.llm.FailCompleteWith(assert.AnError)

	err := f.router.OnUserMessage(ctx, "yes", proto.TagTest)
	assert.ErrorIs(t, err, ErrInferenceUnavailable)
	assert.True(t, f.state.LastAnalyzed().IsEmpty(), "last-analyzed only moves on success")
	assert.Equal(t, session.PendingNone, f.state.Pending())
	assert.Empty(t, f.out.byCommand(proto.CmdDisplayTest))
}

func TestUndeliveredOfferIsNotPending(t *testing.T) {
	f := newFixture(t)
	f.out.closed = true

	require.NoError(t, f.router.OnSave(context.Background(), fileBuffer(withFoo)))
	assert.Equal(t, session.PendingNone, f.state.Pending())

	// the same save once the chat is open asks for real
	f.out.mu.Lock()
	f.out.closed = false
	f.out.mu.Unlock()
	require.NoError(t, f.router.OnSave(context.Background(), fileBuffer(withFoo)))
	assert.Len(t, f.out.byCommand(proto.CmdAskGenerateTest), 1)
	assert.Equal(t, session.AwaitingTest, f.state.Pending())
}

func TestSaveIgnoresNonFileBuffers(t *testing.T) {
	f := newFixture(t)
	err := f.router.OnSave(context.Background(), host.StaticBuffer{Path: "untitled:1", Content: withFoo})
	assert.ErrorIs(t, err, ErrNoActionableChange)
	assert.Empty(t, f.out.all())
}

func TestCheckCode(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		buffer  host.Buffer
		wantErr error
		want    proto.Outbound
		pending session.Pending
	}{
		{name: "problems", reply: "ISSUES", buffer: fileBuffer(withFoo), want: proto.AskAnalyzeCode{Text: panel.MsgIssuesFound}, pending: session.AwaitingAnalysis},
		{name: "clean", reply: "ALL_CLEAR", buffer: fileBuffer(withFoo), want: proto.ChatText{Text: MsgNoErrors}},
		{name: "no editor", wantErr: ErrNoActiveBuffer, want: proto.ChatText{Text: MsgNoActiveBuffer}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.llm.RespondWith(tt.reply)
			if tt.buffer != nil {
				f.editor.SetActive(tt.buffer)
			}

			err := f.router.CheckCode(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, []proto.Outbound{tt.want}, f.out.all())
			assert.Equal(t, tt.pending, f.state.Pending())
		})
	}
}

func TestSendSelectionAndFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.router.SendSelection(ctx), ErrNoActiveBuffer)
	assert.ErrorIs(t, f.router.SendCurrentFile(ctx), ErrNoActiveBuffer)

	f.editor.SetActive(fileBuffer(""))
	assert.ErrorIs(t, f.router.SendSelection(ctx), ErrEmptySelection)
	assert.ErrorIs(t, f.router.SendCurrentFile(ctx), ErrEmptyBuffer)

	f.editor.SetActive(fileBuffer(withFoo))
	f.editor.SetSelection("def foo(x):")
	require.NoError(t, f.router.SendSelection(ctx))
	require.NoError(t, f.router.SendCurrentFile(ctx))

	injected := f.out.byCommand(proto.CmdInjectUserCode)
	assert.Equal(t, []proto.Outbound{
		proto.InjectUserCode{Text: "def foo(x):"},
		proto.InjectUserCode{Text: withFoo},
	}, injected)
	assert.Zero(t, f.llm.CallCount())
}

func TestClosedChatFallsBackToEditorMessage(t *testing.T) {
	f := newFixture(t)
	f.out.closed = true

	assert.ErrorIs(t, f.router.SendCurrentFile(context.Background()), ErrNoActiveBuffer)
	assert.Equal(t, []string{MsgNoActiveBuffer}, f.editor.Messages())
}

func TestProviderPanicSurfacesAsFailure(t *testing.T) {
	f := newFixture(t)
	f.llm.OnComplete(nil) // calling a nil handler panics inside the mock

	var err error
	assert.NotPanics(t, func() { err = f.router.OnUserMessage(context.Background(), "hello", proto.TagNone) })
	assert.ErrorIs(t, err, ErrInferenceUnavailable)
	assert.Equal(t, []proto.Outbound{proto.ChatText{Text: gateway.MsgUnavailable}}, f.out.all())
}

func TestRouterPanicIsRecovered(t *testing.T) {
	f := newFixture(t)
	f.router.out = EmitterFunc(func(proto.Outbound) bool { panic("surface gone") })
	f.state.AskAnalysis()

	var err error
	assert.NotPanics(t, func() { err = f.router.OnUserMessage(context.Background(), "hello", proto.TagNone) })
	assert.ErrorIs(t, err, ErrPanic)
	assert.Equal(t, []string{MsgInternal}, f.editor.Messages())
	assert.Equal(t, session.PendingNone, f.state.Pending(), "state is reset after a panic")
}

func TestHandle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.router.Handle(ctx, proto.SendMessage{Text: "hi"}))
	require.NoError(t, f.router.Handle(ctx, proto.InjectUserCode{Text: "def foo(): pass"}))
	assert.Len(t, f.llm.CallsFor("chat"), 2)

	assert.ErrorIs(t, f.router.Handle(ctx, proto.Navigate{Action: proto.CmdBack}), proto.ErrUnknownMessage)
}
