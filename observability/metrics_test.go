package observability

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	nativecommon "stakevault/native/common"
	"stakevault/native/staking"
	"stakevault/native/token"
)

func TestStakingMetricsObserve(t *testing.T) {
	m := Staking()
	require.Same(t, m, Staking())

	beforeOK := testutil.ToFloat64(m.operations.WithLabelValues("deposit", "success"))
	beforeErr := testutil.ToFloat64(m.errors.WithLabelValues("withdraw", "still_locked"))

	m.ObserveOperation("deposit", time.Millisecond, nil)
	m.ObserveOperation("withdraw", time.Millisecond, fmt.Errorf("wrapped: %w", staking.ErrStillLocked))

	require.Equal(t, beforeOK+1, testutil.ToFloat64(m.operations.WithLabelValues("deposit", "success")))
	require.Equal(t, beforeErr+1, testutil.ToFloat64(m.errors.WithLabelValues("withdraw", "still_locked")))

	m.SetPrincipalLocked(big.NewInt(1500))
	require.Equal(t, 1500.0, testutil.ToFloat64(m.locked))

	minted := testutil.ToFloat64(m.minted)
	m.CredentialMinted()
	require.Equal(t, minted+1, testutil.ToFloat64(m.minted))
}

func TestErrorReason(t *testing.T) {
	require.Equal(t, "paused", ErrorReason(nativecommon.ErrModulePaused))
	require.Equal(t, "clock_skew", ErrorReason(staking.ErrClockSkew))
	require.Equal(t, "custody_account", ErrorReason(fmt.Errorf("staking: transfer in: %w", token.ErrCustodyAccount)))
	require.Equal(t, "internal", ErrorReason(errors.New("disk on fire")))
	require.Equal(t, "", ErrorReason(nil))
}

func TestEventsRecordJournaled(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.journaled.WithLabelValues("Deposit"))
	m.RecordJournaled("Deposit")
	m.RecordJournaled(" ")
	require.Equal(t, before+1, testutil.ToFloat64(m.journaled.WithLabelValues("Deposit")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.journaled.WithLabelValues("unknown")))
}
