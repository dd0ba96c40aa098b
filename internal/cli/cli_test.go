package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	cases := map[float64]string{
		0:           "0.00",
		12.5:        "12.50",
		999.999:     "1,000.00",
		84985:       "84,985.00",
		100969.5:    "100,969.50",
		-1234567.89: "-1,234,567.89",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatMoney(in), "FormatMoney(%v)", in)
	}

	assert.Equal(t, "+15.00", FormatPnL(15))
	assert.Equal(t, "-15.00", FormatPnL(-15))
	assert.Equal(t, "5.00%", FormatRatio(0.05))
	assert.Equal(t, "-", FormatPrice(0))
	assert.Equal(t, "abc...", TruncateString("abcdefghij", 6))
	assert.Equal(t, "abc", TruncateString("abc", 6))
}

func TestProperty_GroupThousandsPreservesDigits(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("removing separators gives the input back", prop.ForAll(
		func(n int64) bool {
			s := strconv.FormatInt(n, 10)
			grouped := groupThousands(s)
			if strings.ReplaceAll(grouped, ",", "") != s {
				return false
			}
			for i, part := range strings.Split(grouped, ",") {
				if len(part) > 3 || (i > 0 && len(part) != 3) || len(part) == 0 {
					return false
				}
			}
			return true
		},
		gen.Int64Range(0, 1<<50),
	))

	properties.TestingRun(t)
}

func TestTable_AlignsColoredCells(t *testing.T) {
	var buf bytes.Buffer
	out := newOutput(&buf, false)
	out.green.EnableColor()

	table := NewTable(out, "ORDER", "STATUS")
	table.AddRow("ORD_1", out.Status("filled"))
	table.AddRow("ORD_22", "pending")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, visibleLen(lines[0]), visibleLen(lines[1]))
	assert.Contains(t, lines[2], "filled")
	assert.Equal(t, 6, visibleLen("\x1b[32mfilled\x1b[0m"))
}

// testConfigDir writes a config that keeps logs and the journal inside a
// temp dir and seeds one paper quote.
func testConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := `
[trading]
broker = "paper"
default_quantity = 10

[trading.prices]
AAPL = 150.0

[store]
enabled = false

[log]
console = false
file = true
file_path = "` + filepath.ToSlash(filepath.Join(dir, "trader.log")) + `"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0600))
	t.Setenv("FINNHUB_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("TRADER_BROKER", "")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := &App{Logger: zerolog.Nop()}
	cmd := NewRootCmd(app)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionJSON(t *testing.T) {
	out, err := run(t, "version", "--json", "--config", testConfigDir(t))
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, Version, got["version"])
}

func TestBrokersJSON(t *testing.T) {
	out, err := run(t, "brokers", "--json", "--config", testConfigDir(t))
	require.NoError(t, err)

	var got struct {
		Brokers []string `json:"brokers"`
		Default string   `json:"default"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"finnhub", "paper", "zerodha"}, got.Brokers)
	assert.Equal(t, "paper", got.Default)
}

func TestConfigValidate(t *testing.T) {
	dir := testConfigDir(t)
	out, err := run(t, "config", "validate", "--json", "--config", dir)
	require.NoError(t, err)
	assert.JSONEq(t, `{"valid": true}`, out)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[risk]\nmax_drawdown = 2.0\n"), 0600))
	out, err = run(t, "config", "validate", "--json", "--config", dir)
	require.Error(t, err)
	assert.Contains(t, out, `"valid": false`)
}

func TestSignalCommand_PaperRoundTrip(t *testing.T) {
	out, err := run(t, "signal", "aapl", "buy", "--json", "--config", testConfigDir(t))
	require.NoError(t, err)

	var got struct {
		Result struct {
			Status  string `json:"status"`
			Symbol  string `json:"symbol"`
			OrderID string `json:"order_id"`
		} `json:"result"`
		Updates []struct {
			OrderID      string `json:"order_id"`
			Status       string `json:"status"`
			RiskSnapshot struct {
				Cash float64 `json:"cash"`
			} `json:"risk_snapshot"`
		} `json:"updates"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	assert.Equal(t, "executed", got.Result.Status)
	assert.Equal(t, "AAPL", got.Result.Symbol)
	require.Len(t, got.Updates, 1)
	assert.Equal(t, got.Result.OrderID, got.Updates[0].OrderID)
	assert.Equal(t, "filled", got.Updates[0].Status)
	// 10 shares at 150 plus 0.1% commission.
	assert.InDelta(t, 98498.5, got.Updates[0].RiskSnapshot.Cash, 1e-6)
}

func TestSignalCommand_RiskRejection(t *testing.T) {
	out, err := run(t, "signal", "AAPL", "buy", "-q", "1000", "--config", testConfigDir(t))
	require.NoError(t, err)
	assert.Contains(t, out, "rejected")
}

func TestRiskCommand(t *testing.T) {
	out, err := run(t, "risk", "--json", "--config", testConfigDir(t))
	require.NoError(t, err)

	var got struct {
		Metrics struct {
			Equity float64 `json:"equity"`
		} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 100000.0, got.Metrics.Equity)
}

func TestConfigShow_PaperMode(t *testing.T) {
	out, err := run(t, "config", "show", "--config", testConfigDir(t))
	require.NoError(t, err)
	assert.Contains(t, out, "paper (orders matched in memory)")
}
