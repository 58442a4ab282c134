package observability

import (
	"errors"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	nativecommon "stakevault/native/common"
	"stakevault/native/staking"
	"stakevault/native/token"
)

// StakingMetrics bundles the collectors describing ledger activity. It
// satisfies staking.Observer.
type StakingMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	errors     *prometheus.CounterVec
	minted     prometheus.Counter
	locked     prometheus.Gauge
}

var (
	stakingMetricsOnce sync.Once
	stakingRegistry    *StakingMetrics
)

var _ staking.Observer = (*StakingMetrics)(nil)

// Staking returns the lazily-initialised staking metrics registry.
func Staking() *StakingMetrics {
	stakingMetricsOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "staking",
				Name:      "operations_total",
				Help:      "Count of ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stakevault",
				Subsystem: "staking",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "staking",
				Name:      "errors_total",
				Help:      "Count of rejected ledger operations segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			minted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stakevault",
				Subsystem: "staking",
				Name:      "credentials_minted_total",
				Help:      "Bonus credentials minted on threshold crossings.",
			}),
			locked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stakevault",
				Subsystem: "staking",
				Name:      "principal_locked",
				Help:      "Principal currently staked across all accounts, in base units.",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.latency,
			stakingRegistry.errors,
			stakingRegistry.minted,
			stakingRegistry.locked,
		)
	})
	return stakingRegistry
}

// ObserveOperation records the outcome of a ledger operation.
func (m *StakingMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(op, ErrorReason(err)).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// CredentialMinted increments the mint counter.
func (m *StakingMetrics) CredentialMinted() {
	if m == nil {
		return
	}
	m.minted.Inc()
}

// SetPrincipalLocked publishes the total staked principal.
func (m *StakingMetrics) SetPrincipalLocked(total *big.Int) {
	if m == nil {
		return
	}
	m.locked.Set(bigToFloat(total))
}

var errorReasons = []struct {
	err    error
	reason string
}{
	{staking.ErrInvalidAmount, "invalid_amount"},
	{staking.ErrStillLocked, "still_locked"},
	{staking.ErrNoPrincipal, "no_principal"},
	{staking.ErrOverflow, "overflow"},
	{staking.ErrNotOwner, "not_owner"},
	{staking.ErrAlreadyDeposited, "already_deposited"},
	{staking.ErrNoCredentialDeposited, "no_credential"},
	{staking.ErrClockSkew, "clock_skew"},
	{staking.ErrInvalidParams, "invalid_params"},
	{nativecommon.ErrModulePaused, "paused"},
	{token.ErrInsufficientBalance, "insufficient_balance"},
	{token.ErrInvalidAmount, "invalid_amount"},
	{token.ErrCustodyAccount, "custody_account"},
}

// ErrorReason maps err onto a stable, low-cardinality label.
func ErrorReason(err error) string {
	if err == nil {
		return ""
	}
	for _, candidate := range errorReasons {
		if errors.Is(err, candidate.err) {
			return candidate.reason
		}
	}
	return "internal"
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
