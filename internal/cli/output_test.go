package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitError(t *testing.T) {
	base := errors.New("boom")
	err := WrapExitError(ExitFailure, "send failed", base)
	assert.Equal(t, "send failed: boom", err.Error())
	assert.ErrorIs(t, err, base)

	plain := NewExitError(ExitCommandError, "bad flag")
	assert.Equal(t, "bad flag", plain.Error())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "x")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitFailure,
		GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitFailure, "inner"))))
}

func TestFormatterTextOutput(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	require.NoError(t, f.Success("all good"))
	assert.Equal(t, "all good\n", buf.String())

	buf.Reset()
	require.NoError(t, f.Error("it broke"))
	assert.Equal(t, "Error: it broke\n", buf.String())
}

func TestFormatterJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Success(map[string]int{"count": 3}))
	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	buf.Reset()
	require.NoError(t, f.Error("it broke"))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "it broke", resp.Error)
}

func TestVerboseLog(t *testing.T) {
	var out, diag bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &diag, Verbose: true}

	f.VerboseLog("step %d", 1)
	assert.Empty(t, out.String(), "diagnostics must not corrupt json output")
	assert.Equal(t, "step 1\n", diag.String())

	f.Verbose = false
	diag.Reset()
	f.VerboseLog("quiet")
	assert.Empty(t, diag.String())
}
