// Package bridge connects a remote editor extension to a coach session over a websocket.
//
// Each connection carries JSON frames in both directions. The editor mirrors its buffers
// and forwards panel traffic; the daemon creates, posts to and disposes panels on the
// editor's behalf. One connection owns exactly one session.
package bridge

import (
	"encoding/json"

	"codecoach/pkg/host"
)

// FrameType names a frame.
type FrameType string

// Editor to daemon.
const (
	FrameBuffers     FrameType = "buffers"
	FrameSave        FrameType = "save"
	FrameAction      FrameType = "action"
	FramePanel       FrameType = "panel"
	FramePanelClosed FrameType = "panelClosed"
)

// Daemon to editor.
const (
	FrameCreatePanel  FrameType = "createPanel"
	FrameDisposePanel FrameType = "disposePanel"
	FramePost         FrameType = "post"
	FrameShowMessage  FrameType = "showMessage"
)

// Action names carried by FrameAction.
const (
	ActionOpenChat        = "openChat"
	ActionOpenWizard      = "openWizard"
	ActionSendSelection   = "sendSelection"
	ActionSendCurrentFile = "sendCurrentFile"
	ActionCheckCode       = "checkCode"
)

// Frame is the envelope of every websocket message. Only the fields relevant to Type
// are set.
type Frame struct {
	Type      FrameType           `json:"type"`
	Surface   string              `json:"surface,omitempty"`
	Panel     string              `json:"panel,omitempty"`
	Title     string              `json:"title,omitempty"`
	Text      string              `json:"text,omitempty"`
	Name      string              `json:"name,omitempty"`
	Payload   json.RawMessage     `json:"payload,omitempty"`
	Buffer    *host.StaticBuffer  `json:"buffer,omitempty"`
	Active    *host.StaticBuffer  `json:"active,omitempty"`
	Visible   []host.StaticBuffer `json:"visible,omitempty"`
	Selection string              `json:"selection,omitempty"`
}
