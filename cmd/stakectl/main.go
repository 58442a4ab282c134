package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stakevault/config"
	"stakevault/crypto"
	"stakevault/integrations/exports"
	"stakevault/native/staking"
	"stakevault/observability/logging"
	telemetry "stakevault/observability/otel"
	"stakevault/services/journal"
)

const (
	initCommand     = "init"
	simulateCommand = "simulate"
	balanceCommand  = "balance"
	historyCommand  = "history"
	exportCommand   = "export"
	defaultConfig   = "./stakevault.toml"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) < 1 {
		usage(stdout)
		return errors.New("command required")
	}
	switch args[0] {
	case initCommand:
		return runInit(args[1:], stdout)
	case simulateCommand:
		return runSimulate(args[1:], stdout)
	case balanceCommand:
		return runBalance(args[1:], stdout)
	case historyCommand:
		return runHistory(args[1:], stdout)
	case exportCommand:
		return runExport(args[1:], stdout)
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		usage(stdout)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: stakectl <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  init       write a default configuration file")
	fmt.Fprintln(w, "  simulate   replay a YAML scenario against the ledger")
	fmt.Fprintln(w, "  balance    print an account's staking position")
	fmt.Fprintln(w, "  history    page through the event journal")
	fmt.Fprintln(w, "  export     export journal entries as CSV or JSON Lines")
}

func runInit(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(initCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path of the configuration file to create")
	force := fs.Bool("force", false, "Overwrite an existing configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*force {
		if _, err := os.Stat(*configPath); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", *configPath)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	if err := config.Save(*configPath, config.Default()); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", *configPath)
	return nil
}

func runSimulate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(simulateCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the configuration file")
	scenarioPath := fs.String("scenario", "", "Path to the YAML scenario")
	persistent := fs.Bool("persist", false, "Replay against the on-disk ledger and journal instead of memory")
	metricsOut := fs.String("metrics-out", "", "Write Prometheus metrics to this textfile after the run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*scenarioPath) == "" {
		return errors.New("--scenario is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	scenario, err := LoadScenario(*scenarioPath)
	if err != nil {
		return err
	}
	base, err := cfg.Staking.Params()
	if err != nil {
		return err
	}
	params, err := scenario.Params.apply(base)
	if err != nil {
		return fmt.Errorf("scenario params: %w", err)
	}

	rt, err := openRuntime(cfg, runtimeOptions{memory: !*persistent, params: &params})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := context.Background()
	if otelCfg, ok := telemetry.FromEnv(serviceName, cfg.Environment); ok {
		rt.logger.Info("tracing enabled", "endpoint", otelCfg.Endpoint, logging.MaskHeaders(otelCfg.Headers))
		shutdown, err := telemetry.Init(ctx, otelCfg)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				rt.logger.Error("telemetry shutdown", "error", err)
			}
		}()
	}

	sim := newSimulator(rt, telemetry.Tracer(serviceName))
	results, runErr := sim.Run(ctx, scenario)
	printResults(stdout, scenario, results)
	if err := printPositions(stdout, rt, scenario, sim.now); err != nil {
		return err
	}

	if path := firstNonEmpty(*metricsOut, cfg.MetricsTextfile); path != "" {
		if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	failed := 0
	for _, result := range results {
		if !result.Matched {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d steps did not meet expectations", failed, len(results))
	}
	return nil
}

func printResults(w io.Writer, scenario *Scenario, results []StepResult) {
	if scenario.Name != "" {
		fmt.Fprintf(w, "scenario: %s\n", scenario.Name)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tAT\tOP\tACCOUNT\tOUTPUT\tREASON\tOK")
	for _, r := range results {
		ok := "yes"
		if !r.Matched {
			ok = "NO"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\n", r.Index, r.Step.At, r.Step.Op, r.Step.Account, dash(r.Output), dash(r.Reason), ok)
	}
	tw.Flush()
}

func printPositions(w io.Writer, rt *runtime, scenario *Scenario, now uint64) error {
	labels := make(map[string]struct{})
	for _, step := range scenario.Steps {
		if label := strings.TrimSpace(step.Account); label != "" {
			labels[label] = struct{}{}
		}
	}
	names := make([]string, 0, len(labels))
	for label := range labels {
		names = append(names, label)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nACCOUNT\tPRINCIPAL\tACCRUED\tPENDING\tAPR\tCREDENTIAL\tSTATE")
	for _, label := range names {
		view, err := describeAccount(rt, label, now)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n", label, view.Principal, view.AccruedReward, view.PendingReward, view.APR, view.Credential, view.State)
	}
	return tw.Flush()
}

func runBalance(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(balanceCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the configuration file")
	account := fs.String("account", "", "Account label, bech32 or 0x address")
	at := fs.Uint64("at", 0, "Unix time to evaluate pending reward at (default now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*account) == "" {
		return errors.New("--account is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cfg, runtimeOptions{readOnly: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	now := *at
	if now == 0 {
		now = uint64(time.Now().Unix())
	}
	view, err := describeAccount(rt, *account, now)
	if err != nil {
		return err
	}
	return writeJSON(stdout, view)
}

// accountView is the printable position of one account.
type accountView struct {
	Account          string                 `json:"account"`
	Principal        string                 `json:"principal"`
	AccruedReward    string                 `json:"accruedReward"`
	PendingReward    string                 `json:"pendingReward"`
	APR              uint64                 `json:"apr"`
	Sequence         uint64                 `json:"sequence"`
	LastCheckpoint   uint64                 `json:"lastCheckpoint"`
	UnlockAt         uint64                 `json:"unlockAt"`
	Credential       staking.CredentialID   `json:"credential"`
	State            staking.AccountState   `json:"state"`
	WalletBalance    string                 `json:"walletBalance"`
	CredentialsOwned []staking.CredentialID `json:"credentialsOwned"`
}

func describeAccount(rt *runtime, value string, now uint64) (*accountView, error) {
	account, err := crypto.ParseAccount(value)
	if err != nil {
		return nil, err
	}
	addr := account.Raw()
	rec, err := rt.ledger.BalanceOf(addr)
	if err != nil {
		return nil, err
	}
	pending, err := staking.PendingReward(rec, now)
	if err != nil {
		return nil, err
	}
	wallet, err := rt.bank.BalanceOf(addr)
	if err != nil {
		return nil, err
	}
	owned, err := rt.collection.TokensOf(addr)
	if err != nil {
		return nil, err
	}
	lockPeriod := rt.ledger.Params().LockPeriod
	return &accountView{
		Account:          crypto.FromRaw(crypto.StakePrefix, addr).String(),
		Principal:        rec.Principal.String(),
		AccruedReward:    rec.AccruedReward.String(),
		PendingReward:    pending.String(),
		APR:              rec.APR,
		Sequence:         rec.Sequence,
		LastCheckpoint:   rec.LastCheckpoint,
		UnlockAt:         rec.UnlockAt(lockPeriod),
		Credential:       rec.Credential,
		State:            staking.StateOf(rec, now, lockPeriod),
		WalletBalance:    wallet.String(),
		CredentialsOwned: owned,
	}, nil
}

func runHistory(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(historyCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the configuration file")
	account := fs.String("account", "", "Filter by account label, bech32 or 0x address")
	kinds := fs.String("kinds", "", "Comma separated event kinds to include")
	hash := fs.String("hash", "", "Filter by event hash")
	page := fs.Int("page", 1, "Page number")
	perPage := fs.Int("per-page", journal.DefaultPerPage, "Entries per page")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	query, err := buildQuery(*account, *kinds, *hash)
	if err != nil {
		return err
	}
	query.Page = *page
	query.PerPage = *perPage

	store, err := journal.OpenFile(cfg.JournalPath)
	if err != nil {
		return err
	}
	defer store.Close()
	result, err := store.List(context.Background(), query)
	if err != nil {
		return err
	}
	return writeJSON(stdout, result)
}

func runExport(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet(exportCommand, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfig, "Path to the configuration file")
	format := fs.String("format", "csv", "Export format: csv or jsonl")
	out := fs.String("out", "", "Output file (required)")
	account := fs.String("account", "", "Filter by account label, bech32 or 0x address")
	kinds := fs.String("kinds", "", "Comma separated event kinds to include")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*out) == "" {
		return errors.New("--out is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	query, err := buildQuery(*account, *kinds, "")
	if err != nil {
		return err
	}
	store, err := journal.OpenFile(cfg.JournalPath)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := collectEntries(context.Background(), store, query)
	if err != nil {
		return err
	}
	var (
		data     []byte
		checksum string
	)
	switch strings.ToLower(strings.TrimSpace(*format)) {
	case "csv":
		data, checksum, err = exports.JournalCSV(entries)
	case "jsonl":
		data, checksum, err = exports.JournalJSONL(entries)
	default:
		return fmt.Errorf("unsupported format %q", *format)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %d entries to %s (sha256 %s)\n", len(entries), *out, checksum)
	return nil
}

func collectEntries(ctx context.Context, store *journal.Store, query journal.Query) ([]journal.Entry, error) {
	query.PerPage = journal.MaxPerPage
	entries := make([]journal.Entry, 0)
	for page := 1; ; page++ {
		query.Page = page
		result, err := store.List(ctx, query)
		if err != nil {
			return nil, err
		}
		entries = append(entries, result.Items...)
		if page >= result.LastPage {
			return entries, nil
		}
	}
}

func buildQuery(account, kinds, hash string) (journal.Query, error) {
	query := journal.Query{Hash: strings.TrimSpace(hash)}
	if strings.TrimSpace(account) != "" {
		addr, err := crypto.ParseAccount(account)
		if err != nil {
			return query, err
		}
		query.Account = crypto.FromRaw(crypto.StakePrefix, addr.Raw()).String()
	}
	for _, kind := range strings.Split(kinds, ",") {
		if trimmed := strings.TrimSpace(kind); trimmed != "" {
			query.Kinds = append(query.Kinds, trimmed)
		}
	}
	return query, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
