package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"stakevault/config"
	"stakevault/services/journal"
)

const lifecycleScenario = `
name: lifecycle
params:
  base_apr: 8
  bonus_apr: 2
  lock_period: 30
  nft_threshold: "1000"
steps:
  - {at: 1000, op: fund_rewards, amount: "1_000_000"}
  - {at: 1000, op: fund, account: alice, amount: "2000"}
  - {at: 1000, op: deposit, account: alice, amount: "1000"}
  - {at: 1010, op: withdraw, account: alice, expect_error: still_locked}
  - {at: 31537000, op: claim, account: alice, expect: "80"}
  - {at: 31537000, op: deposit_credential, account: alice, expect: "1"}
  - {at: 31537030, op: withdraw, account: alice, expect: "1000"}
  - {at: 31537030, op: withdraw, account: bob, expect_error: no_principal}
`

func writeTestConfig(t *testing.T) (string, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.JournalPath = filepath.Join(dir, "data", "journal.db")
	cfg.Environment = "test"
	cfg.LogFile = filepath.Join(dir, "stakectl.log")
	path := filepath.Join(dir, "stakevault.toml")
	require.NoError(t, config.Save(path, cfg))
	return path, cfg
}

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenarioValidates(t *testing.T) {
	scenario, err := LoadScenario(writeScenario(t, lifecycleScenario))
	require.NoError(t, err)
	require.Equal(t, "lifecycle", scenario.Name)
	require.Len(t, scenario.Steps, 8)
	require.Equal(t, uint64(8), *scenario.Params.BaseAPR)

	cases := map[string]string{
		"unknown op":      "steps:\n  - {at: 1, op: stake, account: alice}\n",
		"missing account": "steps:\n  - {at: 1, op: deposit, amount: \"5\"}\n",
		"bad amount":      "steps:\n  - {at: 1, op: deposit, account: alice, amount: \"-5\"}\n",
		"time reversal":   "steps:\n  - {at: 5, op: claim, account: alice}\n  - {at: 4, op: claim, account: alice}\n",
		"unknown field":   "steps:\n  - {at: 1, op: claim, account: alice, memo: x}\n",
		"no steps":        "name: empty\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, body))
			require.Error(t, err)
		})
	}
}

func TestScenarioParamsOverlay(t *testing.T) {
	cfg := config.Default()
	base, err := cfg.Staking.Params()
	require.NoError(t, err)

	apr := uint64(12)
	params, err := (&scenarioParams{BaseAPR: &apr, NFTThreshold: "500"}).apply(base)
	require.NoError(t, err)
	require.Equal(t, uint64(12), params.BaseAPR)
	require.Equal(t, "500", params.NFTThreshold.String())
	require.Equal(t, base.BonusAPR, params.BonusAPR)

	_, err = (&scenarioParams{NFTThreshold: "0"}).apply(base)
	require.Error(t, err)

	unchanged, err := (*scenarioParams)(nil).apply(base)
	require.NoError(t, err)
	require.Equal(t, base.BaseAPR, unchanged.BaseAPR)
}

func TestInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "stakevault.toml")
	var out bytes.Buffer
	require.NoError(t, run([]string{"init", "-config", path}, &out))
	require.Contains(t, out.String(), path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, config.Default().Staking, cfg.Staking)

	err = run([]string{"init", "-config", path}, &out)
	require.ErrorContains(t, err, "already exists")
	require.NoError(t, run([]string{"init", "-config", path, "-force"}, &out))
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, run(nil, &out))
	require.ErrorContains(t, run([]string{"stake"}, &out), "unknown command")
	require.Contains(t, out.String(), "Usage: stakectl")
}

func TestSimulateInMemory(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	scenarioPath := writeScenario(t, lifecycleScenario)

	var out bytes.Buffer
	require.NoError(t, run([]string{"simulate", "-config", configPath, "-scenario", scenarioPath}, &out))
	text := out.String()
	require.Contains(t, text, "scenario: lifecycle")
	require.Contains(t, text, "still_locked")
	require.NotContains(t, text, "NO\n")
}

func TestSimulateReportsMismatch(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	scenarioPath := writeScenario(t, `
steps:
  - {at: 10, op: fund, account: alice, amount: "100"}
  - {at: 10, op: deposit, account: alice, amount: "100"}
  - {at: 11, op: withdraw, account: alice, expect: "100"}
`)
	var out bytes.Buffer
	err := run([]string{"simulate", "-config", configPath, "-scenario", scenarioPath}, &out)
	require.ErrorContains(t, err, "1 of 3 steps did not meet expectations")
	require.Contains(t, out.String(), "still_locked")
}

func TestPersistedSimulationHistoryAndExport(t *testing.T) {
	configPath, cfg := writeTestConfig(t)
	scenarioPath := writeScenario(t, lifecycleScenario)
	metricsPath := filepath.Join(t.TempDir(), "stakectl.prom")

	var out bytes.Buffer
	require.NoError(t, run([]string{"simulate", "-config", configPath, "-scenario", scenarioPath,
		"-persist", "-metrics-out", metricsPath}, &out))

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	require.Contains(t, string(metrics), "stakevault_staking_operations_total")

	out.Reset()
	require.NoError(t, run([]string{"balance", "-config", configPath, "-account", "alice", "-at", "31537030"}, &out))
	var view accountView
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	require.Equal(t, "0", view.Principal)
	require.Equal(t, "2080", view.WalletBalance)
	require.True(t, strings.HasPrefix(view.Account, "stk1"))

	out.Reset()
	require.NoError(t, run([]string{"history", "-config", configPath, "-account", "alice", "-per-page", "2"}, &out))
	var page journal.Page
	require.NoError(t, json.Unmarshal(out.Bytes(), &page))
	require.Equal(t, 5, page.Total)
	require.Equal(t, 3, page.LastPage)
	require.Equal(t, "Deposit", page.Items[0].Kind)
	require.Equal(t, "CredentialMinted", page.Items[1].Kind)

	out.Reset()
	require.NoError(t, run([]string{"history", "-config", configPath, "-kinds", "ClaimReward"}, &out))
	require.NoError(t, json.Unmarshal(out.Bytes(), &page))
	require.Equal(t, 1, page.Total)
	require.Equal(t, "80", page.Items[0].Amount)

	exportPath := filepath.Join(t.TempDir(), "journal.csv")
	out.Reset()
	require.NoError(t, run([]string{"export", "-config", configPath, "-format", "csv", "-out", exportPath}, &out))
	require.Contains(t, out.String(), "wrote 5 entries")

	file, err := os.Open(exportPath)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	require.Equal(t, "log_index", rows[0][0])

	err = run([]string{"export", "-config", configPath, "-format", "xml", "-out", exportPath}, &out)
	require.ErrorContains(t, err, "unsupported format")
	require.Equal(t, cfg.JournalPath, filepath.Join(cfg.DataDir, "journal.db"))
}

func TestPersistedSimulationReplaysAfterExistingState(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	scenarioPath := writeScenario(t, `
steps:
  - {at: 10, op: fund, account: alice, amount: "1000"}
  - {at: 10, op: deposit, account: alice, amount: "100", expect: "100"}
  - {at: 20, op: deposit, account: alice, amount: "100", expect: "100"}
`)
	var out bytes.Buffer
	require.NoError(t, run([]string{"simulate", "-config", configPath, "-scenario", scenarioPath, "-persist"}, &out))
	require.NotContains(t, out.String(), "clock_skew")

	out.Reset()
	require.NoError(t, run([]string{"simulate", "-config", configPath, "-scenario", scenarioPath, "-persist"}, &out))
	require.NotContains(t, out.String(), "clock_skew")
	require.NotContains(t, out.String(), "NO\n")

	out.Reset()
	require.NoError(t, run([]string{"balance", "-config", configPath, "-account", "alice", "-at", "100"}, &out))
	var view accountView
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	require.Equal(t, "400", view.Principal)
	require.Equal(t, "1600", view.WalletBalance)
}
