package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"stakevault/crypto"
	"stakevault/native/staking"
	"stakevault/observability"
)

// Scenario operations.
const (
	opFund               = "fund"
	opFundRewards        = "fund_rewards"
	opDeposit            = "deposit"
	opWithdraw           = "withdraw"
	opWithdrawAmount     = "withdraw_amount"
	opClaim              = "claim"
	opDepositCredential  = "deposit_credential"
	opWithdrawCredential = "withdraw_credential"
	opSetBaseAPR         = "set_base_apr"
)

// Scenario is a scripted sequence of ledger operations at explicit times.
type Scenario struct {
	Name   string          `yaml:"name"`
	Params *scenarioParams `yaml:"params"`
	Steps  []Step          `yaml:"steps"`
}

type scenarioParams struct {
	BaseAPR                    *uint64 `yaml:"base_apr"`
	BonusAPR                   *uint64 `yaml:"bonus_apr"`
	LockPeriod                 *uint64 `yaml:"lock_period"`
	NFTThreshold               string  `yaml:"nft_threshold"`
	RemintOnRecross            *bool   `yaml:"remint_on_recross"`
	ResetLockOnPartialWithdraw *bool   `yaml:"reset_lock_on_partial_withdraw"`
}

// Step is one scenario operation. Expect compares the returned amount or
// credential id; ExpectError names the failure reason the step must hit.
type Step struct {
	At          uint64 `yaml:"at"`
	Op          string `yaml:"op"`
	Account     string `yaml:"account"`
	Amount      string `yaml:"amount"`
	Credential  uint64 `yaml:"credential"`
	APR         uint64 `yaml:"apr"`
	Expect      string `yaml:"expect"`
	ExpectError string `yaml:"expect_error"`
}

// StepResult reports the outcome of one executed step.
type StepResult struct {
	Index   int
	Step    Step
	Output  string
	Reason  string
	Matched bool
}

// LoadScenario reads a scenario from the YAML file at path.
func LoadScenario(path string) (*Scenario, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	var scenario Scenario
	if err := dec.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := scenario.validate(); err != nil {
		return nil, err
	}
	return &scenario, nil
}

func (s *Scenario) validate() error {
	if len(s.Steps) == 0 {
		return errors.New("scenario has no steps")
	}
	var last uint64
	for i, step := range s.Steps {
		op := strings.ToLower(strings.TrimSpace(step.Op))
		switch op {
		case opFund, opFundRewards, opDeposit, opWithdrawAmount:
			if _, err := parseAmount(step.Amount); err != nil {
				return fmt.Errorf("step %d (%s): %w", i+1, op, err)
			}
		case opWithdraw, opClaim, opDepositCredential, opWithdrawCredential, opSetBaseAPR:
		default:
			return fmt.Errorf("step %d: unknown op %q", i+1, step.Op)
		}
		if op != opFundRewards && op != opSetBaseAPR && strings.TrimSpace(step.Account) == "" {
			return fmt.Errorf("step %d (%s): account required", i+1, op)
		}
		if step.At < last {
			return fmt.Errorf("step %d: time %d precedes previous step at %d", i+1, step.At, last)
		}
		last = step.At
		s.Steps[i].Op = op
	}
	return nil
}

// apply overlays the scenario's parameter overrides on base.
func (p *scenarioParams) apply(base staking.Params) (staking.Params, error) {
	params := base.Clone()
	if p == nil {
		return params, nil
	}
	if p.BaseAPR != nil {
		params.BaseAPR = *p.BaseAPR
	}
	if p.BonusAPR != nil {
		params.BonusAPR = *p.BonusAPR
	}
	if p.LockPeriod != nil {
		params.LockPeriod = *p.LockPeriod
	}
	if strings.TrimSpace(p.NFTThreshold) != "" {
		threshold, err := parseAmount(p.NFTThreshold)
		if err != nil {
			return params, fmt.Errorf("nft_threshold: %w", err)
		}
		params.NFTThreshold = threshold
	}
	if p.RemintOnRecross != nil {
		params.RemintOnRecross = *p.RemintOnRecross
	}
	if p.ResetLockOnPartialWithdraw != nil {
		params.ResetLockOnPartialWithdraw = *p.ResetLockOnPartialWithdraw
	}
	return params, params.Validate()
}

// simulator replays scenario steps against a runtime with a scripted clock.
// Against persisted state the script is shifted past the newest checkpoint
// so a replay never runs the clock backwards.
type simulator struct {
	rt     *runtime
	tracer trace.Tracer
	now    uint64
	offset uint64
}

func newSimulator(rt *runtime, tracer trace.Tracer) *simulator {
	sim := &simulator{rt: rt, tracer: tracer}
	rt.ledger.SetNowFunc(func() uint64 { return sim.now })
	return sim
}

// Run executes every step and reports whether each met its expectation.
func (s *simulator) Run(ctx context.Context, scenario *Scenario) ([]StepResult, error) {
	offset, err := s.clockOffset(scenario)
	if err != nil {
		return nil, err
	}
	s.offset = offset
	if offset > 0 {
		s.rt.logger.Info("shifting scenario clock past persisted state", "offset", offset)
	}

	results := make([]StepResult, 0, len(scenario.Steps))
	for i, step := range scenario.Steps {
		result, err := s.runStep(ctx, i+1, step)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// clockOffset returns how far the scenario times must move so the first step
// lands after every persisted checkpoint. Fresh ledgers need no shift.
func (s *simulator) clockOffset(scenario *Scenario) (uint64, error) {
	if len(scenario.Steps) == 0 {
		return 0, nil
	}
	accounts, err := s.rt.ledger.Accounts()
	if err != nil {
		return 0, err
	}
	var latest uint64
	for _, account := range accounts {
		rec, err := s.rt.ledger.BalanceOf(account)
		if err != nil {
			return 0, err
		}
		if rec.LastCheckpoint > latest {
			latest = rec.LastCheckpoint
		}
	}
	first := scenario.Steps[0].At
	if len(accounts) == 0 || latest < first {
		return 0, nil
	}
	return latest - first + 1, nil
}

func (s *simulator) runStep(ctx context.Context, index int, step Step) (StepResult, error) {
	_, span := s.tracer.Start(ctx, "stakectl.step", trace.WithAttributes(
		attribute.Int("step", index),
		attribute.String("op", step.Op),
		attribute.String("account", step.Account),
		attribute.Int64("at", int64(step.At+s.offset)),
	))
	defer span.End()

	s.now = step.At + s.offset
	output, opErr := s.execute(step)
	result := StepResult{Index: index, Step: step, Output: output, Reason: observability.ErrorReason(opErr)}

	switch {
	case step.ExpectError != "":
		result.Matched = opErr != nil && strings.EqualFold(result.Reason, step.ExpectError)
	case opErr != nil:
		result.Matched = false
	case step.Expect != "":
		result.Matched = output == strings.TrimSpace(step.Expect)
	default:
		result.Matched = true
	}

	if opErr != nil {
		span.RecordError(opErr)
		span.SetAttributes(attribute.String("reason", result.Reason))
	}
	if !result.Matched {
		span.SetStatus(codes.Error, "expectation not met")
		s.rt.logger.Warn("scenario step did not match expectation",
			"step", index,
			"op", step.Op,
			"output", output,
			"reason", result.Reason,
			"expect", step.Expect,
			"expectError", step.ExpectError)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if opErr != nil && result.Reason == "internal" && step.ExpectError == "" {
		return result, fmt.Errorf("step %d (%s): %w", index, step.Op, opErr)
	}
	return result, nil
}

func (s *simulator) execute(step Step) (string, error) {
	ledger := s.rt.ledger
	switch step.Op {
	case opSetBaseAPR:
		return strconv.FormatUint(step.APR, 10), ledger.SetBaseAPR(step.APR)
	case opFundRewards:
		amount, _ := parseAmount(step.Amount)
		return amount.String(), s.rt.bank.Mint(vaultAddress, amount)
	}

	account, err := crypto.ParseAccount(step.Account)
	if err != nil {
		return "", err
	}
	addr := account.Raw()

	switch step.Op {
	case opFund:
		amount, _ := parseAmount(step.Amount)
		return amount.String(), s.rt.bank.Mint(addr, amount)
	case opDeposit:
		amount, _ := parseAmount(step.Amount)
		return amount.String(), ledger.Deposit(addr, amount)
	case opWithdraw:
		receipt, err := ledger.Withdraw(addr)
		if err != nil {
			return "", err
		}
		return receipt.Total.String(), nil
	case opWithdrawAmount:
		amount, _ := parseAmount(step.Amount)
		receipt, err := ledger.WithdrawAmount(addr, amount)
		if err != nil {
			return "", err
		}
		return receipt.Total.String(), nil
	case opClaim:
		reward, err := ledger.ClaimReward(addr)
		if err != nil {
			return "", err
		}
		return reward.String(), nil
	case opDepositCredential:
		id := staking.CredentialID(step.Credential)
		if id == 0 {
			owned, err := s.rt.collection.TokensOf(addr)
			if err != nil {
				return "", err
			}
			if len(owned) > 0 {
				id = owned[0]
			}
		}
		return strconv.FormatUint(uint64(id), 10), ledger.DepositCredential(addr, id)
	case opWithdrawCredential:
		id, err := ledger.WithdrawCredential(addr)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(uint64(id), 10), nil
	}
	return "", fmt.Errorf("unknown op %q", step.Op)
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must be a non-negative base-10 integer", raw)
	}
	return amount, nil
}
