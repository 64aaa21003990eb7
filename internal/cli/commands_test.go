package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/camconform/internal/config"
	"github.com/roach88/camconform/internal/testutil"
)

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "camconform.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// executeRoot runs the full command tree with args.
func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	cmd.SetContext(t.Context())
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestList_Text(t *testing.T) {
	out, _, err := executeRoot(t, "list", "--filter", "s*")
	require.NoError(t, err)
	assert.Equal(t, "sc  set counts\nsa  set saturation\nsh  set sharpness\n", out)
}

func TestList_JSON(t *testing.T) {
	out, _, err := executeRoot(t, "list", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data []CaseInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 19)
	assert.Equal(t, CaseInfo{Name: "im", Description: "capture image"}, resp.Data[0])
	assert.Equal(t, "sh", resp.Data[18].Name)
}

func TestList_InvalidFilter(t *testing.T) {
	_, _, err := executeRoot(t, "list", "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSend(t *testing.T) {
	paths := testutil.Paths(t)
	d := testutil.NewDaemon(t, paths)
	t.Setenv(config.EnvChannel, paths.Channel)

	out, _, err := executeRoot(t, "send", "br", "70")
	require.NoError(t, err)
	assert.Equal(t, "Sent: br 70\n", out)

	d.Drain()
	assert.Equal(t, []string{"br 70"}, d.Commands())
	assert.Equal(t, 70, d.State().Brightness)
}

func TestSend_JSON(t *testing.T) {
	paths := testutil.Paths(t)
	d := testutil.NewDaemon(t, paths)
	t.Setenv(config.EnvChannel, paths.Channel)

	out, _, err := executeRoot(t, "--format", "json", "send", "sc")
	require.NoError(t, err)

	var resp struct {
		Data SendResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, SendResult{Command: "sc", Channel: paths.Channel}, resp.Data)

	d.Drain()
	assert.Equal(t, []string{"sc"}, d.Commands())
}

func TestSend_MissingChannel(t *testing.T) {
	t.Setenv(config.EnvChannel, filepath.Join(t.TempDir(), "FIFO"))

	out, _, err := executeRoot(t, "send", "im")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E_CHANNEL]: failed to send command")
}

func TestConfigValidate(t *testing.T) {
	path := writeConfig(t, `
waits:
  settle: 500ms
thresholds:
  brightness: 3
`)
	out, _, err := executeRoot(t, "config", "validate", path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("✓ %s is valid\n", path), out)
}

func TestConfigValidate_UnknownField(t *testing.T) {
	path := writeConfig(t, "waits:\n  setle: 1s\n")

	out, _, err := executeRoot(t, "config", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ ")
}

func TestConfigValidate_JSON(t *testing.T) {
	path := writeConfig(t, "waits:\n  settle: soon\n")

	out, _, err := executeRoot(t, "--format", "json", "config", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	assert.NotEmpty(t, resp.Data.Errors)
}

func TestConfigValidate_MissingFile(t *testing.T) {
	_, _, err := executeRoot(t, "config", "validate", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigShow_MasksSecret(t *testing.T) {
	path := writeConfig(t, `
archive:
  endpoint: minio.local:9000
  access_key: camconform
  secret_key: hunter2
`)
	out, _, err := executeRoot(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "endpoint: minio.local:9000")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "hunter2")
}

const cliModesListing = `Available cameras
-----------------
0 : imx219 [3280x2464 10-bit RGGB] (/base/soc/i2c0mux/i2c@1/imx219@10)
    Modes: 'SRGGB10_CSI2P' : 640x480 [206.65 fps - (1000, 752)/1280x960 crop]
                             1640x1232 [41.85 fps - (0, 0)/3280x2464 crop]
                             3280x2464 [21.19 fps - (0, 0)/3280x2464 crop]
`

// TestModesHelperProcess stands in for the camera listing tool.
func TestModesHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	if os.Getenv("CLI_HELPER_MODE") == "empty" {
		fmt.Fprintln(os.Stdout, "No cameras available!")
		os.Exit(0)
	}
	fmt.Fprint(os.Stdout, cliModesListing)
	os.Exit(0)
}

func modesConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	return writeConfig(t, fmt.Sprintf("camera:\n  list_command: [%q, %q]\n",
		os.Args[0], "-test.run=TestModesHelperProcess"))
}

func TestModes(t *testing.T) {
	path := modesConfig(t)

	out, _, err := executeRoot(t, "--config", path, "modes")
	require.NoError(t, err)
	assert.Equal(t, "Available Video Modes:\n"+
		"  640x480 @ 206.65 fps\n"+
		"  1640x1232 @ 41.85 fps\n"+
		"  3280x2464 @ 21.19 fps\n"+
		"Highest resolution: 3280x2464\n", out)
}

func TestModes_JSON(t *testing.T) {
	path := modesConfig(t)

	out, _, err := executeRoot(t, "--config", path, "--format", "json", "modes")
	require.NoError(t, err)

	var resp struct {
		Data ModesResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Data.Modes, 3)
	require.NotNil(t, resp.Data.Highest)
	assert.Equal(t, 3280, resp.Data.Highest.Width)
}

func TestModes_NoneFound(t *testing.T) {
	path := modesConfig(t)
	t.Setenv("CLI_HELPER_MODE", "empty")

	out, _, err := executeRoot(t, "--config", path, "modes")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "Available Video Modes:\nNo valid video resolutions found.\n", out)
}
