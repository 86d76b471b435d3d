package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMessageRoundTrip exercises P7: every Message kind survives an
// Encode/Send followed by a Receive/Decode unchanged.
func TestMessageRoundTrip(t *testing.T) {
	cases := []Message{
		NewRequest(Command{Kind: CommandSet, Key: "key1", Value: "value1"}),
		NewRequest(Command{Kind: CommandGet, Key: "key1"}),
		NewRequest(Command{Kind: CommandRemove, Key: "key1"}),
		NewResponse("value1"),
		NewResponse("Key not found"),
		NewError("boom"),
		NewOk(),
	}

	for _, msg := range cases {
		var buf bytes.Buffer
		require.NoError(t, Send(msg, &buf))

		got, err := ReceiveMessage(&buf)
		require.NoError(t, err)
		require.Equal(t, msg, got)
	}
}

// TestReceiveRejectsMissingSentinel verifies that a frame whose ninth
// byte isn't the '\n' sentinel is rejected rather than silently
// misparsed.
func TestReceiveRejectsMissingSentinel(t *testing.T) {
	framed, err := Encode(NewOk())
	require.NoError(t, err)

	framed[8] = 'x'

	_, err = Receive(bytes.NewReader(framed))
	require.Error(t, err)
}

// TestReceiveMultipleMessages verifies that two framed messages
// written back to back can each be read out in order from a shared
// stream, since Receive consumes exactly one frame and no more.
func TestReceiveMultipleMessages(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, Send(NewRequest(Command{Kind: CommandGet, Key: "a"}), &buf))
	require.NoError(t, Send(NewResponse("1"), &buf))

	first, err := ReceiveMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, KindRequest, first.Kind)

	second, err := ReceiveMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, KindResponse, second.Kind)
	require.Equal(t, "1", second.Value)
}
