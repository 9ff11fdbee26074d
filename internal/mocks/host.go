package mocks

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"codecoach/pkg/host"
	"codecoach/pkg/proto"
)

// FakeEditor is an in-memory host.Editor.
type FakeEditor struct {
	active    host.Buffer
	visible   []host.Buffer
	selection string
	messages  []string
	onSave    map[int]func(host.Buffer)
	nextID    int
	mu        sync.Mutex
}

// NewFakeEditor returns an editor with nothing open.
func NewFakeEditor() *FakeEditor {
	return &FakeEditor{onSave: make(map[int]func(host.Buffer))}
}

// SetActive focuses b; nil clears focus.
func (e *FakeEditor) SetActive(b host.Buffer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = b
}

// SetVisible replaces the visible buffer list.
func (e *FakeEditor) SetVisible(buffers ...host.Buffer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.visible = buffers
}

// SetSelection sets the selected text.
func (e *FakeEditor) SetSelection(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selection = text
}

// Save fires every save listener with b.
func (e *FakeEditor) Save(b host.Buffer) {
	e.mu.Lock()
	fns := make([]func(host.Buffer), 0, len(e.onSave))
	for _, fn := range e.onSave {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn(b)
	}
}

// Messages returns every ShowMessage text.
func (e *FakeEditor) Messages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.messages...)
}

// SaveListeners returns the number of registered save callbacks.
func (e *FakeEditor) SaveListeners() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.onSave)
}

func (e *FakeEditor) ActiveBuffer() (host.Buffer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active, e.active != nil
}

func (e *FakeEditor) VisibleBuffers() []host.Buffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]host.Buffer(nil), e.visible...)
}

func (e *FakeEditor) Selection() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection
}

func (e *FakeEditor) OnSave(fn func(host.Buffer)) host.Cancel {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.onSave[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.onSave, id)
	}
}

func (e *FakeEditor) ShowMessage(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, text)
}

// FakeSurface records posted messages and lets tests play the panel's side.
type FakeSurface struct {
	id        string
	kind      string
	title     string
	posted    []proto.Outbound
	onMessage map[int]func(json.RawMessage)
	onDispose map[int]func()
	nextID    int
	disposed  bool
	mu        sync.Mutex
}

func newFakeSurface(id, kind, title string) *FakeSurface {
	return &FakeSurface{
		id:        id,
		kind:      kind,
		title:     title,
		onMessage: make(map[int]func(json.RawMessage)),
		onDispose: make(map[int]func()),
	}
}

func (s *FakeSurface) ID() string    { return s.id }
func (s *FakeSurface) Kind() string  { return s.kind }
func (s *FakeSurface) Title() string { return s.title }

func (s *FakeSurface) Post(msg proto.Outbound) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil
	}
	s.posted = append(s.posted, msg)
	return nil
}

func (s *FakeSurface) OnMessage(fn func(json.RawMessage)) host.Cancel {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.onMessage[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.onMessage, id)
	}
}

func (s *FakeSurface) OnDidDispose(fn func()) host.Cancel {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.onDispose[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.onDispose, id)
	}
}

// Dispose marks the surface closed and runs the dispose listeners once, like a user
// closing the panel.
func (s *FakeSurface) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	fns := make([]func(), 0, len(s.onDispose))
	for _, fn := range s.onDispose {
		fns = append(fns, fn)
	}
	s.onDispose = map[int]func(){}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Send delivers a raw JSON payload from the panel to every message listener.
func (s *FakeSurface) Send(payload string) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	fns := make([]func(json.RawMessage), 0, len(s.onMessage))
	for _, fn := range s.onMessage {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(json.RawMessage(payload))
	}
}

// Posted returns a copy of every message posted so far.
func (s *FakeSurface) Posted() []proto.Outbound {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]proto.Outbound(nil), s.posted...)
}

// PostedCommands returns the command of every posted message ("" for chat text).
func (s *FakeSurface) PostedCommands() []proto.Command {
	posted := s.Posted()
	out := make([]proto.Command, len(posted))
	for i, m := range posted {
		out[i] = m.Command()
	}
	return out
}

// Disposed reports whether Dispose ran.
func (s *FakeSurface) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// MessageListeners returns the number of live OnMessage registrations.
func (s *FakeSurface) MessageListeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.onMessage)
}

// ErrCreateFailed is returned by FakePanelHost.Create after FailNextCreate.
var ErrCreateFailed = errors.New("fake panel host: create failed")

// FakePanelHost creates FakeSurfaces and remembers them in creation order.
type FakePanelHost struct {
	surfaces []*FakeSurface
	failNext bool
	mu       sync.Mutex
}

// NewFakePanelHost returns an empty panel host.
func NewFakePanelHost() *FakePanelHost {
	return &FakePanelHost{}
}

func (h *FakePanelHost) Create(kind, title string) (host.Surface, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failNext {
		h.failNext = false
		return nil, ErrCreateFailed
	}
	s := newFakeSurface(fmt.Sprintf("%s-%d", kind, len(h.surfaces)+1), kind, title)
	h.surfaces = append(h.surfaces, s)
	return s, nil
}

// FailNextCreate makes the next Create return ErrCreateFailed.
func (h *FakePanelHost) FailNextCreate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failNext = true
}

// Surfaces returns every surface ever created.
func (h *FakePanelHost) Surfaces() []*FakeSurface {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*FakeSurface(nil), h.surfaces...)
}

// Last returns the most recently created surface, or nil.
func (h *FakePanelHost) Last() *FakeSurface {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.surfaces) == 0 {
		return nil
	}
	return h.surfaces[len(h.surfaces)-1]
}

// Kinds returns the kind of every surface in creation order.
func (h *FakePanelHost) Kinds() []string {
	surfaces := h.Surfaces()
	out := make([]string, len(surfaces))
	for i, s := range surfaces {
		out[i] = s.Kind()
	}
	return out
}

// Live returns the number of surfaces not yet disposed.
func (h *FakePanelHost) Live() int {
	n := 0
	for _, s := range h.Surfaces() {
		if !s.Disposed() {
			n++
		}
	}
	return n
}
