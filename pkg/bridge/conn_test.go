package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codecoach/pkg/host"
	"codecoach/pkg/proto"
)

type frameLog struct {
	mu     sync.Mutex
	frames []Frame
	fail   error
}

func (l *frameLog) write(f Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return l.fail
	}
	l.frames = append(l.frames, f)
	return nil
}

func (l *frameLog) types() []FrameType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FrameType, 0, len(l.frames))
	for _, f := range l.frames {
		out = append(out, f.Type)
	}
	return out
}

func (l *frameLog) last() Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames[len(l.frames)-1]
}

type fakeSession struct {
	mu    sync.Mutex
	calls []string
}

func (s *fakeSession) record(name string) func(context.Context) error {
	return func(context.Context) error {
		s.mu.Lock()
		s.calls = append(s.calls, name)
		s.mu.Unlock()
		return nil
	}
}

func (s *fakeSession) OpenChat(ctx context.Context) error   { return s.record("openChat")(ctx) }
func (s *fakeSession) OpenWizard(ctx context.Context) error { return s.record("openWizard")(ctx) }
func (s *fakeSession) SendSelection(ctx context.Context) error {
	return s.record("sendSelection")(ctx)
}
func (s *fakeSession) SendCurrentFile(ctx context.Context) error {
	return s.record("sendCurrentFile")(ctx)
}
func (s *fakeSession) CheckNow(ctx context.Context) error { return s.record("checkCode")(ctx) }
func (s *fakeSession) Close()                             {}

func TestBuffersFrameMirrorsEditor(t *testing.T) {
	conn := newConn((&frameLog{}).write)
	_, ok := conn.ActiveBuffer()
	assert.False(t, ok)

	active := host.StaticBuffer{Path: "file:///a.py", Content: "x = 1", OnDisk: true}
	job := conn.handle(Frame{
		Type:      FrameBuffers,
		Active:    &active,
		Visible:   []host.StaticBuffer{active, {Path: "output:log", Content: "noise"}},
		Selection: "x",
	}, &fakeSession{})
	assert.Nil(t, job)

	buf, ok := conn.ActiveBuffer()
	require.True(t, ok)
	assert.Equal(t, "x = 1", buf.Text())
	assert.Len(t, conn.VisibleBuffers(), 2)
	assert.Equal(t, "x", conn.Selection())

	conn.handle(Frame{Type: FrameBuffers}, &fakeSession{})
	_, ok = conn.ActiveBuffer()
	assert.False(t, ok, "a frame without an active buffer clears focus")
}

func TestActionsBecomeJobs(t *testing.T) {
	conn := newConn((&frameLog{}).write)
	sess := &fakeSession{}

	for _, name := range []string{ActionOpenChat, ActionOpenWizard, ActionSendSelection, ActionSendCurrentFile, ActionCheckCode} {
		job := conn.handle(Frame{Type: FrameAction, Name: name}, sess)
		require.NotNil(t, job, name)
		require.NoError(t, job(context.Background()))
	}
	assert.Equal(t, []string{"openChat", "openWizard", "sendSelection", "sendCurrentFile", "checkCode"}, sess.calls)

	assert.Nil(t, conn.handle(Frame{Type: FrameAction, Name: "launchRockets"}, sess))
	assert.Nil(t, conn.handle(Frame{Type: "bogus"}, sess))
}

func TestSaveFrameNotifiesListeners(t *testing.T) {
	conn := newConn((&frameLog{}).write)
	var saved []host.Buffer
	cancel := conn.OnSave(func(b host.Buffer) { saved = append(saved, b) })

	buf := host.StaticBuffer{Path: "file:///a.py", Content: "def foo(): pass", OnDisk: true}
	job := conn.handle(Frame{Type: FrameSave, Buffer: &buf}, &fakeSession{})
	require.NotNil(t, job)
	require.NoError(t, job(context.Background()))
	require.Len(t, saved, 1)
	assert.Equal(t, "file:///a.py", saved[0].URI())

	cancel()
	cancel()
	require.NoError(t, conn.handle(Frame{Type: FrameSave, Buffer: &buf}, &fakeSession{})(context.Background()))
	assert.Len(t, saved, 1)

	assert.Nil(t, conn.handle(Frame{Type: FrameSave}, &fakeSession{}), "save without buffer is dropped")
}

func TestSurfaceLifecycle(t *testing.T) {
	log := &frameLog{}
	conn := newConn(log.write)

	s, err := conn.Create("chat", "CodeCoach")
	require.NoError(t, err)
	created := log.last()
	assert.Equal(t, Frame{Type: FrameCreatePanel, Surface: s.ID(), Panel: "chat", Title: "CodeCoach"}, created)
	assert.Equal(t, 1, conn.Surfaces())

	require.NoError(t, s.Post(proto.ChatText{Text: "hi"}))
	posted := log.last()
	assert.Equal(t, FramePost, posted.Type)
	assert.JSONEq(t, `{"text":"hi"}`, string(posted.Payload))

	var received []string
	s.OnMessage(func(raw json.RawMessage) { received = append(received, string(raw)) })
	job := conn.handle(Frame{Type: FramePanel, Surface: s.ID(), Payload: json.RawMessage(`{"command":"yes"}`)}, &fakeSession{})
	require.NotNil(t, job)
	require.NoError(t, job(context.Background()))
	assert.Equal(t, []string{`{"command":"yes"}`}, received)

	disposed := 0
	s.OnDidDispose(func() { disposed++ })
	s.Dispose()
	s.Dispose()
	assert.Equal(t, 1, disposed)
	assert.Equal(t, Frame{Type: FrameDisposePanel, Surface: s.ID()}, log.last())
	assert.Zero(t, conn.Surfaces())

	before := len(log.types())
	require.NoError(t, s.Post(proto.ChatText{Text: "late"}))
	assert.Len(t, log.types(), before, "posting to a disposed surface is a no-op")
	assert.Nil(t, conn.handle(Frame{Type: FramePanel, Surface: s.ID()}, &fakeSession{}))
}

func TestPanelClosedByEditor(t *testing.T) {
	log := &frameLog{}
	conn := newConn(log.write)
	s, err := conn.Create("analysisHub", "CodeCoach")
	require.NoError(t, err)

	disposed := 0
	s.OnDidDispose(func() { disposed++ })
	conn.handle(Frame{Type: FramePanelClosed, Surface: s.ID()}, &fakeSession{})
	conn.handle(Frame{Type: FramePanelClosed, Surface: s.ID()}, &fakeSession{})

	assert.Equal(t, 1, disposed)
	assert.NotContains(t, log.types(), FrameDisposePanel, "the editor already closed it")
}

func TestCreateFailsWhenWriteFails(t *testing.T) {
	log := &frameLog{fail: errors.New("broken pipe")}
	conn := newConn(log.write)

	_, err := conn.Create("chat", "CodeCoach")
	assert.Error(t, err)
	assert.Zero(t, conn.Surfaces())
}

func TestShutdownDisposesSurfaces(t *testing.T) {
	conn := newConn((&frameLog{}).write)
	s, err := conn.Create("chat", "CodeCoach")
	require.NoError(t, err)
	disposed := false
	s.OnDidDispose(func() { disposed = true })

	conn.shutdown()
	conn.shutdown()

	assert.True(t, disposed)
	_, err = conn.Create("chat", "CodeCoach")
	assert.ErrorIs(t, err, ErrConnClosed)
}
