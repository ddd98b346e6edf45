package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type VoucherMetrics struct {
	transitions        *prometheus.CounterVec
	transitionFailures *prometheus.CounterVec
	finalizations      *prometheus.CounterVec
	withdrawals        *prometheus.CounterVec
	withdrawalFailures prometheus.Counter
	disasterDrains     prometheus.Counter
}

var (
	voucherOnce     sync.Once
	voucherRegistry *VoucherMetrics
)

func Voucher() *VoucherMetrics {
	voucherOnce.Do(func() {
		voucherRegistry = &VoucherMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "voucher_transitions_total",
				Help: "Count of applied lifecycle transitions by action.",
			}, []string{"action"}),
			transitionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "voucher_transition_failures_total",
				Help: "Count of rejected lifecycle transitions by action and error kind.",
			}, []string{"action", "reason"}),
			finalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "voucher_finalizations_total",
				Help: "Count of finalizations by final flag-set.",
			}, []string{"flags"}),
			withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "voucher_withdrawals_total",
				Help: "Count of completed ledger withdrawals by asset.",
			}, []string{"asset"}),
			withdrawalFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "voucher_withdrawal_failures_total",
				Help: "Count of withdrawals aborted by a failed external transfer.",
			}),
			disasterDrains: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "voucher_disaster_drains_total",
				Help: "Count of completed emergency drains of locked deposits.",
			}),
		}
		prometheus.MustRegister(
			voucherRegistry.transitions,
			voucherRegistry.transitionFailures,
			voucherRegistry.finalizations,
			voucherRegistry.withdrawals,
			voucherRegistry.withdrawalFailures,
			voucherRegistry.disasterDrains,
		)
	})
	return voucherRegistry
}

func (m *VoucherMetrics) ObserveTransition(action string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action).Inc()
}

func (m *VoucherMetrics) ObserveTransitionFailure(action, reason string) {
	if m == nil {
		return
	}
	m.transitionFailures.WithLabelValues(action, reason).Inc()
}

func (m *VoucherMetrics) ObserveFinalization(flags string) {
	if m == nil {
		return
	}
	m.finalizations.WithLabelValues(flags).Inc()
}

func (m *VoucherMetrics) ObserveWithdrawal(asset string) {
	if m == nil {
		return
	}
	m.withdrawals.WithLabelValues(asset).Inc()
}

func (m *VoucherMetrics) ObserveWithdrawalFailure() {
	if m == nil {
		return
	}
	m.withdrawalFailures.Inc()
}

func (m *VoucherMetrics) ObserveDisasterDrain() {
	if m == nil {
		return
	}
	m.disasterDrains.Inc()
}
