package log

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutputSplit(t *testing.T) {
	var out, errOut bytes.Buffer
	SetOutput(&out, &errOut)
	t.Cleanup(func() { SetOutput(os.Stdout, os.Stderr) })

	Info("client connected", "peer_addr", "127.0.0.1:5000")
	Err("could not read message from client", "error", "boom")

	require.Contains(t, out.String(), "client connected")
	require.Contains(t, out.String(), "peer_addr=127.0.0.1:5000")
	require.NotContains(t, out.String(), "could not read")
	require.Contains(t, errOut.String(), "level=ERROR")
	require.Contains(t, errOut.String(), "error=boom")
}

func TestSetup(t *testing.T) {
	var out, errOut bytes.Buffer
	SetOutput(&out, &errOut)
	t.Cleanup(func() {
		require.NoError(t, Setup("info", "text"))
		SetOutput(os.Stdout, os.Stderr)
	})

	Debug("hidden")
	require.Empty(t, out.String())

	require.NoError(t, Setup("debug", "json"))
	Debug("visible", "n", 1)
	require.Contains(t, out.String(), `"msg":"visible"`)
	require.Contains(t, out.String(), `"n":1`)

	require.Error(t, Setup("loud", "text"))
	require.Error(t, Setup("info", "xml"))
}
