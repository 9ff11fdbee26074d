// Package host declares what the orchestrator needs from the editor that embeds it.
//
// The orchestrator only consumes these interfaces. pkg/bridge implements them for a
// remote editor extension; pkg/host/fswatch and pkg/host/terminal implement them for
// the standalone watch mode.
package host

import (
	"encoding/json"

	"codecoach/pkg/proto"
)

// Buffer is a text document open in the editor.
type Buffer interface {
	URI() string
	Text() string
	// FileBacked reports whether the buffer is a file on disk (as opposed to an
	// output pane, untitled scratch buffer or similar).
	FileBacked() bool
}

// Cancel unregisters a callback. Calling it more than once is safe.
type Cancel func()

// Editor exposes the editor's documents and notifications.
type Editor interface {
	// ActiveBuffer returns the focused buffer, or false if nothing is focused.
	ActiveBuffer() (Buffer, bool)
	// VisibleBuffers returns every buffer currently shown in the editor.
	VisibleBuffers() []Buffer
	// Selection returns the selected text of the active buffer (may be empty).
	Selection() string
	// OnSave registers fn for document save events.
	OnSave(fn func(Buffer)) Cancel
	// ShowMessage displays a transient notification outside any panel.
	ShowMessage(text string)
}

// Surface is one visual panel created by the host.
type Surface interface {
	ID() string
	// Post delivers a message to the panel. Posting to a disposed surface is a no-op.
	Post(msg proto.Outbound) error
	// OnMessage registers fn for raw payloads sent by the panel.
	OnMessage(fn func(json.RawMessage)) Cancel
	// OnDidDispose registers fn to run once when the surface is disposed, by either side.
	OnDidDispose(fn func()) Cancel
	// Dispose closes the panel. It is idempotent.
	Dispose()
}

// PanelHost creates panel surfaces. kind names the view to load (chat, alertPrompt,
// progress, suggestion or analysisHub); the host assigns the surface ID.
type PanelHost interface {
	Create(kind, title string) (Surface, error)
}

// StaticBuffer is an immutable Buffer value.
type StaticBuffer struct {
	Path    string `json:"uri"`
	Content string `json:"text"`
	OnDisk  bool   `json:"file"`
}

func (b StaticBuffer) URI() string      { return b.Path }
func (b StaticBuffer) Text() string     { return b.Content }
func (b StaticBuffer) FileBacked() bool { return b.OnDisk }

// FirstFileBacked returns the first file-backed buffer with content.
func FirstFileBacked(buffers []Buffer) (Buffer, bool) {
	for _, b := range buffers {
		if b != nil && b.FileBacked() && b.Text() != "" {
			return b, true
		}
	}
	return nil, false
}
