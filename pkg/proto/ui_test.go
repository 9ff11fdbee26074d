package proto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Inbound
	}{
		{name: "chat", raw: `{"command":"sendMessage","text":"How do I sort?"}`, want: SendMessage{Text: "How do I sort?"}},
		{name: "tagged reply", raw: `{"command":"sendMessage","text":"yes","context":"test"}`, want: SendMessage{Text: "yes", Context: TagTest}},
		{name: "inject", raw: `{"command":"injectUserCode","text":"x = 1"}`, want: InjectUserCode{Text: "x = 1"}},
		{name: "yes", raw: `{"command":"yes"}`, want: Navigate{Action: CmdYes}},
		{name: "no", raw: `{"command":"no"}`, want: Navigate{Action: CmdNo}},
		{name: "close", raw: `{"command":"close"}`, want: Navigate{Action: CmdClose}},
		{name: "back", raw: `{"command":"back"}`, want: Navigate{Action: CmdBack}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInbound([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeInboundRejectsUnknown(t *testing.T) {
	for _, raw := range []string{`{"command":"explode"}`, `{"text":"no command"}`, `{"command":"displayTest","text":"wrong direction"}`} {
		_, err := DecodeInbound([]byte(raw))
		assert.True(t, errors.Is(err, ErrUnknownMessage), raw)
	}

	_, err := DecodeInbound([]byte(`{not json`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnknownMessage))
}

func TestEncodeOutbound(t *testing.T) {
	tests := []struct {
		name string
		msg  Outbound
		want string
	}{
		{name: "chat text", msg: ChatText{Text: "hi"}, want: `{"text":"hi"}`},
		{name: "display test", msg: DisplayTest{Text: "def test_foo(): pass"}, want: `{"command":"displayTest","text":"def test_foo(): pass"}`},
		{name: "ask test", msg: AskGenerateTest{Text: "q"}, want: `{"command":"askGenerateTest","text":"q"}`},
		{name: "ask analyze", msg: AskAnalyzeCode{Text: "q"}, want: `{"command":"askAnalyzeCode","text":"q"}`},
		{name: "suggestion", msg: UpdateSuggestion{Pages: []string{"ab", "c"}}, want: `{"command":"updateSuggestion","suggestionPages":["ab","c"],"totalPages":2}`},
		{name: "empty suggestion", msg: UpdateSuggestion{}, want: `{"command":"updateSuggestion","suggestionPages":[],"totalPages":0}`},
		{name: "progress", msg: SetProgressTime{Millis: 4200}, want: `{"command":"setProgressTime","time":4200}`},
		{name: "inject", msg: InjectUserCode{Text: "x"}, want: `{"command":"injectUserCode","text":"x"}`},
		{name: "empty text kept", msg: ChatText{}, want: `{"text":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeOutbound(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))

			back, err := DecodeOutbound(data)
			require.NoError(t, err)
			assert.Equal(t, tt.msg.Command(), back.Command())
		})
	}
}

func TestEncodeInbound(t *testing.T) {
	data, err := EncodeInbound(SendMessage{Text: "yes", Context: TagTest})
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"sendMessage","text":"yes","context":"test"}`, string(data))

	data, err = EncodeInbound(Navigate{Action: CmdBack})
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"back"}`, string(data))

	_, err = EncodeInbound(Navigate{Action: CmdDisplayTest})
	assert.True(t, errors.Is(err, ErrUnknownMessage))
}

func TestDecodeOutboundRejectsUnknown(t *testing.T) {
	_, err := DecodeOutbound([]byte(`{}`))
	assert.True(t, errors.Is(err, ErrUnknownMessage))
	_, err = DecodeOutbound([]byte(`{"command":"yes"}`))
	assert.True(t, errors.Is(err, ErrUnknownMessage))
}
