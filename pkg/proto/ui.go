// Package proto defines the JSON messages exchanged with a panel surface.
//
// Both directions are closed sets: Inbound and Outbound are sealed interfaces and every
// concrete message is listed here. Decoding an unknown command yields ErrUnknownMessage.
package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownMessage is returned for a payload whose command is not part of the schema.
var ErrUnknownMessage = errors.New("unknown message")

// Command is the discriminator carried in the "command" field.
type Command string

// Inbound commands.
const (
	CmdSendMessage    Command = "sendMessage"
	CmdInjectUserCode Command = "injectUserCode"
	CmdYes            Command = "yes"
	CmdNo             Command = "no"
	CmdClose          Command = "close"
	CmdBack           Command = "back"
)

// Outbound commands. Plain chat text carries no command.
const (
	CmdDisplayTest      Command = "displayTest"
	CmdAskGenerateTest  Command = "askGenerateTest"
	CmdAskAnalyzeCode   Command = "askAnalyzeCode"
	CmdUpdateSuggestion Command = "updateSuggestion"
	CmdSetProgressTime  Command = "setProgressTime"
)

// Tag is the explicit context a reply may carry to say which question it answers.
type Tag string

const (
	// TagNone means the reply carried no explicit context.
	TagNone Tag = ""
	// TagTest marks a reply to the test-generation question.
	TagTest Tag = "test"
)

// Inbound is a message from the surface to the orchestrator.
type Inbound interface {
	inbound()
	Command() Command
}

// Outbound is a message from the orchestrator to the surface.
type Outbound interface {
	outbound()
	Command() Command
}

// SendMessage is a chat or confirmation turn typed by the user.
type SendMessage struct {
	Text    string
	Context Tag
}

// InjectUserCode prefills the chat input with code. It travels in both directions:
// the orchestrator posts it after "send selection", and a surface may echo it back.
type InjectUserCode struct {
	Text string
}

// Navigate is a wizard navigation click.
type Navigate struct {
	Action Command // CmdYes, CmdNo, CmdClose or CmdBack
}

// ChatText appends text to the chat transcript.
type ChatText struct {
	Text string
}

// DisplayTest shows generated unit tests.
type DisplayTest struct {
	Text string
}

// AskGenerateTest asks whether to generate tests for newly added functions.
type AskGenerateTest struct {
	Text string
}

// AskAnalyzeCode asks whether to show a detailed analysis of detected problems.
type AskAnalyzeCode struct {
	Text string
}

// UpdateSuggestion delivers the paginated analysis.
type UpdateSuggestion struct {
	Pages []string
}

// SetProgressTime tells the progress panel how long its countdown runs.
type SetProgressTime struct {
	Millis int64
}

func (SendMessage) inbound()    {}
func (InjectUserCode) inbound() {}
func (Navigate) inbound()       {}

func (InjectUserCode) outbound()   {}
func (ChatText) outbound()         {}
func (DisplayTest) outbound()      {}
func (AskGenerateTest) outbound()  {}
func (AskAnalyzeCode) outbound()   {}
func (UpdateSuggestion) outbound() {}
func (SetProgressTime) outbound()  {}

func (SendMessage) Command() Command      { return CmdSendMessage }
func (InjectUserCode) Command() Command   { return CmdInjectUserCode }
func (n Navigate) Command() Command       { return n.Action }
func (ChatText) Command() Command         { return "" }
func (DisplayTest) Command() Command      { return CmdDisplayTest }
func (AskGenerateTest) Command() Command  { return CmdAskGenerateTest }
func (AskAnalyzeCode) Command() Command   { return CmdAskAnalyzeCode }
func (UpdateSuggestion) Command() Command { return CmdUpdateSuggestion }
func (SetProgressTime) Command() Command  { return CmdSetProgressTime }

// wire is the union of every field used on the wire.
type wire struct {
	Command         Command  `json:"command,omitempty"`
	Text            *string  `json:"text,omitempty"`
	Context         Tag      `json:"context,omitempty"`
	SuggestionPages []string `json:"suggestionPages,omitempty"`
	Time            *int64   `json:"time,omitempty"`
}

type suggestionWire struct {
	Command         Command  `json:"command"`
	SuggestionPages []string `json:"suggestionPages"`
	TotalPages      int      `json:"totalPages"`
}

func strPtr(s string) *string { return &s }

// DecodeInbound parses a surface payload.
func DecodeInbound(raw []byte) (Inbound, error) {
	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode inbound message: %w", err)
	}
	text := ""
	if w.Text != nil {
		text = *w.Text
	}

	switch w.Command {
	case CmdSendMessage:
		return SendMessage{Text: text, Context: w.Context}, nil
	case CmdInjectUserCode:
		return InjectUserCode{Text: text}, nil
	case CmdYes, CmdNo, CmdClose, CmdBack:
		return Navigate{Action: w.Command}, nil
	default:
		return nil, fmt.Errorf("%w: command %q", ErrUnknownMessage, w.Command)
	}
}

// EncodeInbound serializes an inbound message, as a surface would send it.
func EncodeInbound(msg Inbound) ([]byte, error) {
	w := wire{Command: msg.Command()}
	switch m := msg.(type) {
	case SendMessage:
		w.Text = strPtr(m.Text)
		w.Context = m.Context
	case InjectUserCode:
		w.Text = strPtr(m.Text)
	case Navigate:
		switch m.Action {
		case CmdYes, CmdNo, CmdClose, CmdBack:
		default:
			return nil, fmt.Errorf("%w: navigation %q", ErrUnknownMessage, m.Action)
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
	return json.Marshal(w)
}

// EncodeOutbound serializes an outbound message.
func EncodeOutbound(msg Outbound) ([]byte, error) {
	w := wire{Command: msg.Command()}
	switch m := msg.(type) {
	case ChatText:
		w.Text = strPtr(m.Text)
	case InjectUserCode:
		w.Text = strPtr(m.Text)
	case DisplayTest:
		w.Text = strPtr(m.Text)
	case AskGenerateTest:
		w.Text = strPtr(m.Text)
	case AskAnalyzeCode:
		w.Text = strPtr(m.Text)
	case UpdateSuggestion:
		// the page array is always present, even when empty
		pages := m.Pages
		if pages == nil {
			pages = []string{}
		}
		return json.Marshal(suggestionWire{Command: CmdUpdateSuggestion, SuggestionPages: pages, TotalPages: len(pages)})
	case SetProgressTime:
		ms := m.Millis
		w.Time = &ms
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
	return json.Marshal(w)
}

// DecodeOutbound parses an orchestrator payload; used by front ends and tests.
func DecodeOutbound(raw []byte) (Outbound, error) {
	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode outbound message: %w", err)
	}
	text := ""
	if w.Text != nil {
		text = *w.Text
	}

	switch w.Command {
	case "":
		if w.Text == nil {
			return nil, fmt.Errorf("%w: missing command and text", ErrUnknownMessage)
		}
		return ChatText{Text: text}, nil
	case CmdInjectUserCode:
		return InjectUserCode{Text: text}, nil
	case CmdDisplayTest:
		return DisplayTest{Text: text}, nil
	case CmdAskGenerateTest:
		return AskGenerateTest{Text: text}, nil
	case CmdAskAnalyzeCode:
		return AskAnalyzeCode{Text: text}, nil
	case CmdUpdateSuggestion:
		return UpdateSuggestion{Pages: w.SuggestionPages}, nil
	case CmdSetProgressTime:
		var ms int64
		if w.Time != nil {
			ms = *w.Time
		}
		return SetProgressTime{Millis: ms}, nil
	default:
		return nil, fmt.Errorf("%w: command %q", ErrUnknownMessage, w.Command)
	}
}
