package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"codecoach/pkg/host"
	"codecoach/pkg/logx"
	"codecoach/pkg/proto"
)

// ErrConnClosed is returned when writing to a closed connection.
var ErrConnClosed = errors.New("bridge connection closed")

// Session is what a connection drives. *coach.Session implements it.
type Session interface {
	OpenChat(ctx context.Context) error
	OpenWizard(ctx context.Context) error
	SendSelection(ctx context.Context) error
	SendCurrentFile(ctx context.Context) error
	CheckNow(ctx context.Context) error
	Close()
}

// SessionFactory builds the session for a new connection.
type SessionFactory func(ctx context.Context, editor host.Editor, panels host.PanelHost) (Session, error)

// writeFunc sends one frame to the editor.
type writeFunc func(Frame) error

// Conn is the daemon side of one editor connection. It implements host.Editor and
// host.PanelHost by mirroring the editor's state from inbound frames.
type Conn struct {
	write  writeFunc
	logger *logx.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	closed    bool
	active    *host.StaticBuffer
	visible   []host.StaticBuffer
	selection string
	saves     map[uint64]func(host.Buffer)
	nextID    uint64
	surfaces  map[string]*surface
}

func newConn(write writeFunc) *Conn {
	return &Conn{
		write:    write,
		logger:   logx.NewLogger("bridge"),
		saves:    make(map[uint64]func(host.Buffer)),
		surfaces: make(map[string]*surface),
	}
}

// ActiveBuffer implements host.Editor.
func (c *Conn) ActiveBuffer() (host.Buffer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil, false
	}
	return *c.active, true
}

// VisibleBuffers implements host.Editor.
func (c *Conn) VisibleBuffers() []host.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]host.Buffer, 0, len(c.visible))
	for _, b := range c.visible {
		out = append(out, b)
	}
	return out
}

// Selection implements host.Editor.
func (c *Conn) Selection() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection
}

// OnSave implements host.Editor.
func (c *Conn) OnSave(fn func(host.Buffer)) host.Cancel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.saves[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.saves, id)
		c.mu.Unlock()
	}
}

// ShowMessage implements host.Editor.
func (c *Conn) ShowMessage(text string) {
	if err := c.send(Frame{Type: FrameShowMessage, Text: text}); err != nil {
		c.logger.Debug("showMessage: %v", err)
	}
}

// Create implements host.PanelHost. The editor is asked to open the panel; the surface
// is usable immediately.
func (c *Conn) Create(kind, title string) (host.Surface, error) {
	s := &surface{
		conn:      c,
		id:        uuid.NewString(),
		kind:      kind,
		onMessage: make(map[uint64]func(json.RawMessage)),
		onDispose: make(map[uint64]func()),
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnClosed
	}
	c.surfaces[s.id] = s
	c.mu.Unlock()

	if err := c.send(Frame{Type: FrameCreatePanel, Surface: s.id, Panel: kind, Title: title}); err != nil {
		c.forget(s.id)
		return nil, fmt.Errorf("create %s panel: %w", kind, err)
	}
	return s, nil
}

// Surfaces returns the number of live surfaces.
func (c *Conn) Surfaces() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.surfaces)
}

// handle applies one inbound frame. Editor state and panel closure are applied
// inline; everything that may call inference is returned as a job for the worker.
func (c *Conn) handle(f Frame, sess Session) func(ctx context.Context) error {
	switch f.Type {
	case FrameBuffers:
		c.mu.Lock()
		c.active = f.Active
		c.visible = f.Visible
		c.selection = f.Selection
		c.mu.Unlock()
		return nil
	case FramePanelClosed:
		if s := c.lookup(f.Surface); s != nil {
			s.closedByEditor()
		}
		return nil
	case FrameSave:
		if f.Buffer == nil {
			c.logger.Warn("save frame without buffer")
			return nil
		}
		buf := *f.Buffer
		return func(context.Context) error {
			for _, fn := range c.saveListeners() {
				fn(buf)
			}
			return nil
		}
	case FramePanel:
		s := c.lookup(f.Surface)
		if s == nil {
			logx.Debug(context.Background(), "bridge", "payload for unknown surface %s dropped", f.Surface)
			return nil
		}
		payload := f.Payload
		return func(context.Context) error {
			s.deliver(payload)
			return nil
		}
	case FrameAction:
		return c.action(f.Name, sess)
	default:
		c.logger.Warn("unknown frame type %q dropped", f.Type)
		return nil
	}
}

func (c *Conn) action(name string, sess Session) func(ctx context.Context) error {
	switch name {
	case ActionOpenChat:
		return sess.OpenChat
	case ActionOpenWizard:
		return sess.OpenWizard
	case ActionSendSelection:
		return sess.SendSelection
	case ActionSendCurrentFile:
		return sess.SendCurrentFile
	case ActionCheckCode:
		return sess.CheckNow
	default:
		c.logger.Warn("unknown action %q dropped", name)
		return nil
	}
}

func (c *Conn) saveListeners() []func(host.Buffer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]func(host.Buffer), 0, len(c.saves))
	for _, fn := range c.saves {
		out = append(out, fn)
	}
	return out
}

func (c *Conn) lookup(id string) *surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surfaces[id]
}

func (c *Conn) forget(id string) {
	c.mu.Lock()
	delete(c.surfaces, id)
	c.mu.Unlock()
}

func (c *Conn) send(f Frame) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrConnClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.write(f)
}

// shutdown marks the connection closed and disposes every surface locally.
func (c *Conn) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	surfaces := make([]*surface, 0, len(c.surfaces))
	for _, s := range c.surfaces {
		surfaces = append(surfaces, s)
	}
	c.mu.Unlock()

	for _, s := range surfaces {
		s.closedByEditor()
	}
}

// surface is a panel living in the remote editor.
type surface struct {
	conn *Conn
	id   string
	kind string

	mu        sync.Mutex
	disposed  bool
	next      uint64
	onMessage map[uint64]func(json.RawMessage)
	onDispose map[uint64]func()
}

func (s *surface) ID() string { return s.id }

func (s *surface) Post(msg proto.Outbound) error {
	s.mu.Lock()
	disposed := s.disposed
	s.mu.Unlock()
	if disposed {
		return nil
	}
	payload, err := proto.EncodeOutbound(msg)
	if err != nil {
		return err
	}
	return s.conn.send(Frame{Type: FramePost, Surface: s.id, Payload: payload})
}

func (s *surface) OnMessage(fn func(json.RawMessage)) host.Cancel {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.onMessage[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.onMessage, id)
		s.mu.Unlock()
	}
}

func (s *surface) OnDidDispose(fn func()) host.Cancel {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.onDispose[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.onDispose, id)
		s.mu.Unlock()
	}
}

// Dispose closes the panel on the editor side too.
func (s *surface) Dispose() {
	if !s.markDisposed() {
		return
	}
	if err := s.conn.send(Frame{Type: FrameDisposePanel, Surface: s.id}); err != nil && !errors.Is(err, ErrConnClosed) {
		s.conn.logger.Debug("dispose %s: %v", s.id, err)
	}
	s.fireDispose()
}

// closedByEditor disposes the surface without telling the editor, which already knows.
func (s *surface) closedByEditor() {
	if !s.markDisposed() {
		return
	}
	s.fireDispose()
}

func (s *surface) markDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return false
	}
	s.disposed = true
	s.onMessage = map[uint64]func(json.RawMessage){}
	s.conn.forget(s.id)
	return true
}

func (s *surface) fireDispose() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.onDispose))
	for _, fn := range s.onDispose {
		fns = append(fns, fn)
	}
	s.onDispose = map[uint64]func(){}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *surface) deliver(payload json.RawMessage) {
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
		fn(payload)
	}
}
