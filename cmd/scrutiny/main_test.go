package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrutinychain/sdk/pkg/config"
)

const testContract = "0x00000000000000000000000000000000000000c0"

// run executes the command tree with a clean environment.
func run(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	for _, key := range []string{config.EnvRPCURL, config.EnvListen, config.EnvStoreDSN, config.EnvLogLevel} {
		t.Setenv(key, "")
	}

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "scrutiny version 1.0.0 "), out)

	out, _, err = run(t, "", "--version")
	require.NoError(t, err)
	assert.Equal(t, "scrutiny version 1.0.0\n", out)
}

func TestScanners(t *testing.T) {
	out, _, err := run(t, "", "scanners")
	require.NoError(t, err)

	for _, name := range []string{
		"reentrancy", "selfdestruct", "delegatecall", "tx-origin", "integer-overflow", "access-control",
		"gas", "value", "contract-creation", "counterparty",
	} {
		assert.Contains(t, out, name)
	}
	assert.True(t, strings.HasPrefix(out, "KIND"))
}

func TestAnalyze_Bytecode(t *testing.T) {
	// PUSH0 SELFDESTRUCT with no CALLER check.
	out, _, err := run(t, "", "analyze", testContract, "--bytecode", "0x5fff", "--log-level", "error")
	require.NoError(t, err)

	var report struct {
		RiskLevel string            `json:"risk_level"`
		Findings  []string          `json:"findings"`
		Metadata  map[string]string `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))

	assert.Equal(t, "Critical", report.RiskLevel)
	require.Len(t, report.Findings, 2)
	assert.Equal(t, "High: "+testContract+" can self-destruct", report.Findings[0])
	assert.True(t, strings.HasPrefix(report.Findings[1], "Critical: missing access control"))
}

func TestAnalyze_NoCode(t *testing.T) {
	out, _, err := run(t, "", "analyze", testContract, "--log-level", "error")
	require.NoError(t, err)

	var report struct {
		Findings []string `json:"findings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Findings, 6)
	for _, f := range report.Findings {
		assert.Equal(t, "Info: no contract code at "+testContract, f)
	}
}

func TestAnalyze_Save(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, "scrutiny.yaml", `
store:
  enabled: true
  driver: sqlite
  dsn: `+filepath.Join(dir, "reports.db")+`
  compression: zstd
`)

	_, stderr, err := run(t, "", "analyze", testContract, "--bytecode", "0x00", "--save", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "saved report ")

	_, err = os.Stat(filepath.Join(dir, "reports.db"))
	assert.NoError(t, err)
}

func TestAnalyze_Errors(t *testing.T) {
	badScanner := writeFile(t, "scrutiny.yaml", "engine:\n  scanners: [bogus]\n")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing address", []string{"analyze"}, "accepts 1 arg"},
		{"invalid address", []string{"analyze", "c0ffee"}, "0x-prefixed"},
		{"invalid bytecode", []string{"analyze", testContract, "--bytecode", "0xzz"}, "invalid hex"},
		{"unknown scanner", []string{"analyze", testContract, "--config", badScanner}, `unknown scanner "bogus"`},
		{"bad log level", []string{"analyze", testContract, "--log-level", "loud"}, "log"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

const batchJSON = `[
  {"hash":"0xaa","from":"0x00000000000000000000000000000000000000a1","value":1000,"gas_price":150,"gas_limit":21000,"nonce":5,"data":"0x","timestamp":1700000000},
  {"hash":"0xbb","from":"0x00000000000000000000000000000000000000a1","to":"0x00000000000000000000000000000000000000b2","value":0,"gas_price":1,"gas_limit":50000,"nonce":6,"data":"0xa9059cbb","timestamp":1700000001}
]`

func decodeBatch(t *testing.T, out string) map[string]map[string]string {
	t.Helper()
	var batch map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &batch))
	return batch
}

func TestProcess_File(t *testing.T) {
	path := writeFile(t, "txs.json", batchJSON)

	out, _, err := run(t, "", "process", "--file", path, "--log-level", "error")
	require.NoError(t, err)

	batch := decodeBatch(t, out)
	require.Len(t, batch, 2)

	assert.Equal(t, "true", batch["0xaa"]["contract_creation"])
	assert.Equal(t, "none", batch["0xaa"]["recipient_type"])
	assert.Equal(t, "0", batch["0xaa"]["calldata_size"])

	assert.Equal(t, "false", batch["0xbb"]["contract_creation"])
	assert.Equal(t, "4", batch["0xbb"]["calldata_size"])
	assert.Equal(t, "eoa", batch["0xbb"]["recipient_type"])
}

func TestProcess_Stdin(t *testing.T) {
	out, _, err := run(t, batchJSON, "process", "-f", "-", "--log-level", "error")
	require.NoError(t, err)
	assert.Len(t, decodeBatch(t, out), 2)
}

func TestProcess_Save(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, "scrutiny.yaml", "store:\n  enabled: true\n  driver: sqlite\n  dsn: "+filepath.Join(dir, "reports.db")+"\n")
	path := writeFile(t, "txs.json", batchJSON)

	_, stderr, err := run(t, "", "process", "--file", path, "--save", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "(2 transactions, 0 failed)")
}

func TestProcess_Errors(t *testing.T) {
	path := writeFile(t, "txs.json", batchJSON)
	bad := writeFile(t, "bad.json", `{"hash":"0xaa"}`)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no source", []string{"process"}, "exactly one of --file or --hash"},
		{"both sources", []string{"process", "--file", path, "--hash", "0x01"}, "exactly one of --file or --hash"},
		{"missing file", []string{"process", "--file", filepath.Join(t.TempDir(), "none.json")}, "open transactions file"},
		{"not an array", []string{"process", "--file", bad}, "decode transactions"},
		{"invalid hash", []string{"process", "--hash", "0x01"}, "hash must be 32 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
