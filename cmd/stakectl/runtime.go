package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"stakevault/config"
	"stakevault/core/events"
	"stakevault/crypto"
	"stakevault/native/staking"
	"stakevault/native/token"
	"stakevault/observability"
	"stakevault/observability/logging"
	"stakevault/services/journal"
	"stakevault/storage"
)

const (
	serviceName    = "stakectl"
	vaultLabel     = "staking-vault"
	tokenSymbol    = "STK"
	collectionName = "StakeBonus"
)

// vaultAddress is the custody account holding staked principal, reward
// reserves and deposited credentials.
var vaultAddress = crypto.AddressFromLabel(crypto.VaultPrefix, vaultLabel).Raw()

// runtime bundles the components a command operates on.
type runtime struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         storage.Database
	bank       *token.Bank
	collection *token.Collection
	ledger     *staking.Ledger
	journal    *journal.Store
	closers    []io.Closer
}

type runtimeOptions struct {
	// memory keeps the ledger and journal in process memory.
	memory bool
	// params overrides the configured staking parameters.
	params *staking.Params
	// readOnly skips the journal emitter.
	readOnly bool
}

func setupLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	if cfg.LogFile != "" {
		return logging.SetupFile(cfg.LogFile, serviceName, cfg.Environment)
	}
	return logging.SetupWriter(os.Stderr, serviceName, cfg.Environment), nil, nil
}

func openRuntime(cfg *config.Config, opts runtimeOptions) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	logger, logCloser, err := setupLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	rt.logger = logger
	if logCloser != nil {
		rt.closers = append(rt.closers, logCloser)
	}

	params, err := cfg.Staking.Params()
	if err != nil {
		return nil, err
	}
	if opts.params != nil {
		params = opts.params.Clone()
	}

	if opts.memory {
		rt.db = storage.NewMemDB()
		rt.journal, err = journal.OpenMemory()
	} else {
		if cfg.DataDir == "" {
			return nil, errors.New("DataDir must be configured")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		var ldb *storage.LevelDB
		ldb, err = storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
		if err != nil {
			return nil, fmt.Errorf("open ledger database: %w", err)
		}
		rt.db = ldb
		rt.journal, err = journal.OpenFile(cfg.JournalPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	rt.bank = token.NewBank(rt.db, tokenSymbol)
	rt.collection = token.NewCollection(rt.db, collectionName)
	rt.ledger, err = staking.NewLedger(params, rt.bank.Vault(vaultAddress), rt.collection.Custody(vaultAddress), rt.db)
	if err != nil {
		return nil, err
	}
	rt.ledger.SetLogger(logger.With("component", "staking"))
	rt.ledger.SetPauses(cfg.Staking.Pauses())
	rt.ledger.SetObserver(observability.Staking())

	if !opts.readOnly {
		journalEmitter := journal.NewEmitter(rt.journal, logger.With("component", "journal"))
		journalEmitter.OnSave(func(entry journal.Entry) {
			observability.Events().RecordJournaled(entry.Kind)
		})
		rt.ledger.SetEmitter(events.Fanout{journalEmitter})
	}
	return rt, nil
}

// Close releases every resource held by the runtime. It is safe to call on a
// partially constructed runtime.
func (rt *runtime) Close() {
	if rt == nil {
		return
	}
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil && rt.logger != nil {
			rt.logger.Error("close journal", "error", err)
		}
	}
	if rt.db != nil {
		rt.db.Close()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i].Close()
	}
}
