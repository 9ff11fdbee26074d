// Package terminal is a line-oriented front end for standalone mode. It implements
// host.PanelHost by rendering each panel's messages as text and turning typed lines
// into panel payloads.
package terminal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"codecoach/pkg/host"
	"codecoach/pkg/logx"
	"codecoach/pkg/proto"
)

// ErrNoPanel is returned when a panel command is typed with no panel open.
var ErrNoPanel = errors.New("no panel is open")

// Actions are the session triggers reachable from slash commands.
type Actions interface {
	OpenChat(ctx context.Context) error
	OpenWizard(ctx context.Context) error
	SendSelection(ctx context.Context) error
	SendCurrentFile(ctx context.Context) error
	CheckNow(ctx context.Context) error
}

// LineReader reads one line of input without its terminator.
type LineReader interface {
	ReadLine() (string, error)
}

type scannerReader struct{ *bufio.Scanner }

func (s scannerReader) ReadLine() (string, error) {
	if s.Scan() {
		return s.Text(), nil
	}
	if err := s.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// NewLineReader returns a reader for r. It accepts anything an io.Reader can supply.
func NewLineReader(r io.Reader) LineReader {
	return scannerReader{bufio.NewScanner(r)}
}

// Open returns a line reader and writer for the process terminal. When stdin is a
// terminal it is put in raw mode with line editing; restore must be called on exit.
func Open(in, out *os.File) (LineReader, io.Writer, func(), error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return NewLineReader(in), out, func() {}, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("enter raw mode: %w", err)
	}
	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{in, out}, "> ")
	return t, t, func() { _ = term.Restore(fd, state) }, nil
}

const help = `commands:
  /chat     open the chat            /wizard   start monitoring
  /check    check the file now       /file     send the whole file to the chat
  /yes /no  answer the open question /back /close  navigate the panel
  /send     send the prefilled code  /quit     exit
anything else is sent to the chat`

// UI renders panels to a writer. Only one panel is current at a time.
type UI struct {
	logger *logx.Logger

	outMu sync.Mutex
	out   io.Writer

	mu       sync.Mutex
	current  *surface
	seq      int
	prefill  string
	messages []string
}

// New returns a UI writing to out.
func New(out io.Writer) *UI {
	return &UI{out: out, logger: logx.NewLogger("terminal")}
}

// Create implements host.PanelHost.
func (u *UI) Create(kind, title string) (host.Surface, error) {
	u.mu.Lock()
	u.seq++
	s := &surface{
		ui:        u,
		id:        fmt.Sprintf("%s-%d", kind, u.seq),
		kind:      kind,
		onMessage: make(map[int]func(json.RawMessage)),
		onDispose: make(map[int]func()),
	}
	u.current = s
	u.mu.Unlock()

	u.printf("── %s · %s ──\n", title, kind)
	return s, nil
}

// ShowMessage prints a notification; it satisfies the notifier of a watched editor.
func (u *UI) ShowMessage(text string) {
	u.mu.Lock()
	u.messages = append(u.messages, text)
	u.mu.Unlock()
	u.printf("! %s\n", text)
}

// Run reads lines until EOF, /quit or ctx cancellation.
func (u *UI) Run(ctx context.Context, lines LineReader, actions Actions) error {
	u.printf("%s\n", help)
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := lines.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		quit, err := u.Execute(ctx, strings.TrimSpace(line), actions)
		if err != nil {
			logx.Debug(ctx, "terminal", "%q: %v", line, err)
		}
		if quit {
			return nil
		}
	}
}

// Execute applies one input line. It reports whether the user asked to quit.
func (u *UI) Execute(ctx context.Context, line string, actions Actions) (bool, error) {
	switch line {
	case "":
		return false, nil
	case "/quit", "/exit":
		return true, nil
	case "/help":
		u.printf("%s\n", help)
		return false, nil
	case "/chat":
		return false, actions.OpenChat(ctx)
	case "/wizard":
		return false, actions.OpenWizard(ctx)
	case "/check":
		return false, actions.CheckNow(ctx)
	case "/file":
		return false, actions.SendCurrentFile(ctx)
	case "/selection":
		return false, actions.SendSelection(ctx)
	case "/yes", "/no", "/back", "/close":
		return false, u.deliver(proto.Navigate{Action: proto.Command(strings.TrimPrefix(line, "/"))})
	case "/send":
		u.mu.Lock()
		code := u.prefill
		u.prefill = ""
		u.mu.Unlock()
		if code == "" {
			u.ShowMessage("Nothing to send. Use /file first.")
			return false, nil
		}
		return false, u.deliver(proto.InjectUserCode{Text: code})
	}
	if strings.HasPrefix(line, "/") {
		u.ShowMessage(fmt.Sprintf("Unknown command %s. Type /help.", line))
		return false, nil
	}
	if u.currentKind() != "chat" {
		if err := actions.OpenChat(ctx); err != nil {
			return false, err
		}
	}
	return false, u.deliver(proto.SendMessage{Text: line})
}

// Messages returns every notification shown so far.
func (u *UI) Messages() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.messages...)
}

func (u *UI) currentKind() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.current == nil {
		return ""
	}
	return u.current.kind
}

func (u *UI) deliver(msg proto.Inbound) error {
	u.mu.Lock()
	s := u.current
	u.mu.Unlock()
	if s == nil {
		u.ShowMessage("No panel is open. Use /chat or /wizard.")
		return ErrNoPanel
	}
	raw, err := proto.EncodeInbound(msg)
	if err != nil {
		return err
	}
	s.deliver(raw)
	return nil
}

func (u *UI) render(msg proto.Outbound) {
	switch m := msg.(type) {
	case proto.ChatText:
		u.printf("coach: %s\n", m.Text)
	case proto.DisplayTest:
		u.printf("── generated test ──\n%s\n────────────────────\n", m.Text)
	case proto.AskGenerateTest:
		u.printf("? %s (yes/no)\n", m.Text)
	case proto.AskAnalyzeCode:
		u.printf("? %s (/yes or /no)\n", m.Text)
	case proto.SetProgressTime:
		u.printf("… analyzing, results in about %s\n", (time.Duration(m.Millis) * time.Millisecond).Round(time.Second))
	case proto.UpdateSuggestion:
		for i, page := range m.Pages {
			u.printf("[%d/%d] %s\n", i+1, len(m.Pages), page)
		}
	case proto.InjectUserCode:
		u.mu.Lock()
		u.prefill = m.Text
		u.mu.Unlock()
		u.printf("prefilled %d characters; /send to ask about them\n", len(m.Text))
	default:
		u.logger.Warn("cannot render %T", msg)
	}
}

func (u *UI) printf(format string, args ...any) {
	u.outMu.Lock()
	defer u.outMu.Unlock()
	_, _ = fmt.Fprintf(u.out, format, args...)
}

func (u *UI) released(s *surface) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.current == s {
		u.current = nil
	}
}

type surface struct {
	ui   *UI
	id   string
	kind string

	mu        sync.Mutex
	disposed  bool
	next      int
	onMessage map[int]func(json.RawMessage)
	onDispose map[int]func()
}

func (s *surface) ID() string { return s.id }

func (s *surface) Post(msg proto.Outbound) error {
	s.mu.Lock()
	disposed := s.disposed
	s.mu.Unlock()
	if !disposed {
		s.ui.render(msg)
	}
	return nil
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

func (s *surface) Dispose() {
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

	s.ui.released(s)
	for _, fn := range fns {
		fn()
	}
}

func (s *surface) deliver(raw json.RawMessage) {
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
		fn(raw)
	}
}
