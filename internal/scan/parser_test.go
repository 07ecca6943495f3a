package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPayload_PureJSON(t *testing.T) {
	payload, ok := ExtractPayload(`{"opportunities":[]}`, "")
	require.True(t, ok)
	assert.JSONEq(t, `{"opportunities":[]}`, string(payload))
}

func TestExtractPayload_LogLinesAroundArray(t *testing.T) {
	stdout := "loading universe...\nscoring 500 candidates\n[{\"a\":1}]\ndone\n"
	payload, ok := ExtractPayload(stdout, "")
	require.True(t, ok)
	assert.JSONEq(t, `[{"a":1}]`, string(payload))
}

func TestExtractPayload_LogLinesAroundObject(t *testing.T) {
	stdout := "progress 10%\nprogress 99%\n{\"opportunities\":[{\"symbol\":\"AAPL\"}]}\n"
	payload, ok := ExtractPayload(stdout, "")
	require.True(t, ok)
	assert.JSONEq(t, `{"opportunities":[{"symbol":"AAPL"}]}`, string(payload))
}

func TestExtractPayload_JSONOnStderrOnly(t *testing.T) {
	stdout := "progress...\nstill working\n"
	stderr := "warn: slow market data\n[{\"symbol\":\"MSFT\"}]\n"
	payload, ok := ExtractPayload(stdout, stderr)
	require.True(t, ok)
	assert.JSONEq(t, `[{"symbol":"MSFT"}]`, string(payload))
}

func TestExtractPayload_EmptyInput(t *testing.T) {
	_, ok := ExtractPayload("", "")
	assert.False(t, ok)

	_, ok = ExtractPayload("   \n\t  ", "")
	assert.False(t, ok)
}

func TestExtractPayload_NoBrackets(t *testing.T) {
	_, ok := ExtractPayload("engine crashed before emitting anything\n", "segfault\n")
	assert.False(t, ok)
}

func TestExtractPayload_TruncatedJSON(t *testing.T) {
	// Must not panic and must report no payload.
	_, ok := ExtractPayload(`{"opportunities":[{"symbol":"AAPL","sco`, "")
	assert.False(t, ok)

	_, ok = ExtractPayload(`[{"a":1},{"b":`, "")
	assert.False(t, ok)
}

func TestExtractPayload_ArrayBeforeObjectPicksFirstOpener(t *testing.T) {
	stdout := "x\n[1,2,3] trailing {notjson\n"
	payload, ok := ExtractPayload(stdout, "")
	require.True(t, ok)
	assert.JSONEq(t, `[1,2,3]`, string(payload))
}

func TestExtractPayload_GarbageBothStreams(t *testing.T) {
	_, ok := ExtractPayload("{{{{", "}}}}")
	assert.False(t, ok)
}
