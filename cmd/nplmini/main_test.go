package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/nplmini/core"
	"github.com/najoast/nplmini/logging"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParseCommandTable(t *testing.T) {
	out, err := execute(t, "parse", "(world1)server001@paraengine.com:script/hello.lua", "script/a.lua")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "INPUT"))
	assert.Equal(t, []string{
		"(world1)server001@paraengine.com:script/hello.lua",
		"world1",
		"server001@paraengine.com",
		"script/hello.lua",
		"-",
		"(world1)server001@paraengine.com:script/hello.lua",
	}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"script/a.lua", "-", "-", "script/a.lua", "-", "script/a.lua"}, strings.Fields(lines[2]))
}

func TestParseCommandJSON(t *testing.T) {
	out, err := execute(t, "parse", "--json", "user001:script/hello.lua@dns.paraengine.com")
	require.NoError(t, err)

	var got []parsedAddress
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, parsedAddress{
		Input:     "user001:script/hello.lua@dns.paraengine.com",
		NID:       "user001",
		Path:      "script/hello.lua",
		DNS:       "dns.paraengine.com",
		Remote:    true,
		Canonical: "user001:script/hello.lua@dns.paraengine.com",
	}, got[0])
}

func TestParseCommandNeedsArgument(t *testing.T) {
	_, err := execute(t, "parse")
	assert.Error(t, err)
}

func TestChannelsCommandDefaults(t *testing.T) {
	out, err := execute(t, "channels")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, core.ChannelCount+1)
	assert.Equal(t, []string{"0", "medium", "reliable_ordered", "*"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"1", "medium", "unreliable_sequenced"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"15", "medium", "reliable_sequenced"}, strings.Fields(lines[16]))
}

func TestChannelsCommandConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nplmini.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`runtime:
  default_channel: 3
  channels:
    - id: 3
      priority: 3
      reliability: reliable
`), 0o644))

	out, err := execute(t, "channels", "--config", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, core.ChannelCount+1)
	assert.Equal(t, []string{"0", "medium", "reliable_ordered"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"3", "low", "reliable", "*"}, strings.Fields(lines[4]))
}

func TestChannelsCommandMissingConfig(t *testing.T) {
	_, err := execute(t, "channels", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "nplmini dev (none)\n", out)
}

func TestRunCommandMissingConfig(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSplitActivation(t *testing.T) {
	tests := []struct {
		in, address, payload string
	}{
		{"script/echo.lua", "script/echo.lua", ""},
		{"(worker1)script/echo.lua=hello", "(worker1)script/echo.lua", "hello"},
		{"a.lua=x=y", "a.lua", "x=y"},
	}
	for _, tt := range tests {
		address, payload := splitActivation(tt.in)
		assert.Equal(t, tt.address, address)
		assert.Equal(t, tt.payload, payload)
	}
}

func TestEchoStateFactory(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, "text", slog.LevelInfo, false)

	m := core.NewManager(core.WithLogger(logger), core.WithStateFactory(echoStateFactory(logger)))
	m.Init()
	defer m.Close()

	worker := m.CreateGetState("worker1", core.StateKindNPL)
	require.NoError(t, m.ActivateMain("(worker1)"+EchoPath, []byte("ping")))
	require.NoError(t, m.ActivateMain(EchoPath, []byte("pong")))
	assert.Equal(t, 2, m.Run(false))

	out := buf.String()
	assert.Contains(t, out, "state="+worker.Name())
	assert.Contains(t, out, "payload=ping")
	assert.Contains(t, out, "payload=pong")
}
