package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fmueller/voxrelay/internal/relay"
	"github.com/stretchr/testify/require"
)

func TestServeCommandRelaysStdio(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		`{"type":"transcribe","data":{"audioUrl":"a.wav"}}`,
		`{"type":"load","data":{"modelName":"tiny"}}`,
		`{"type":"transcribe","data":{"audioUrl":"a.wav"}}`,
		`{"type":"stop"}`,
	}, "\n")

	out := new(bytes.Buffer)
	cmd := newServeCmd(testApp(&fakeEngine{text: "hello"}))
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(nil)

	require.NoError(t, cmd.Execute())

	var events []relay.Event
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var ev relay.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	types := make([]relay.EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	require.Equal(t, []relay.EventType{
		relay.EventError,
		relay.EventStatus,
		relay.EventLoadProgress,
		relay.EventLoadProgress,
		relay.EventModelLoaded,
		relay.EventStatus,
		relay.EventResult,
		relay.EventStopped,
	}, types)

	require.Equal(t, "model not loaded", events[0].Error)
	require.Equal(t, "Loading model tiny...", events[1].Message)
	require.Equal(t, 25, events[2].Progress)
	require.Equal(t, 100, events[3].Progress)
	require.Equal(t, map[string]any{"text": "hello"}, events[6].Result)
}

func TestSetupCommandLoadsModel(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{}
	out := new(bytes.Buffer)

	cmd := newSetupCmd(testApp(engine))
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--model", "tiny"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, "Model tiny ready\n", out.String())
	require.Equal(t, []string{"tiny"}, engine.loaded())
}

func TestModelsCommandListsCacheState(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ggml-tiny.bin"), []byte("model"), 0o644))

	out := new(bytes.Buffer)
	cmd := newModelsCmd(&appState{modelDir: dir})
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(nil)

	require.NoError(t, cmd.Execute())

	status := map[string]string{}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, []string{"MODEL", "STATUS", "PATH"}, strings.Fields(lines[0]))
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		require.Len(t, fields, 3)
		status[fields[0]] = fields[1]
	}
	require.Equal(t, "cached", status["tiny"])
	require.Equal(t, "missing", status["small"])
	require.Len(t, status, 5)
}
