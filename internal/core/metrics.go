package core

// Metrics receives counters from the core. All methods must be safe for concurrent use.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	HandshakeRejected()
	Broadcast(report DeliveryReport)
	PersistFailed(op string)
}

type nopMetrics struct{}

func (nopMetrics) SessionOpened()           {}
func (nopMetrics) SessionClosed()           {}
func (nopMetrics) HandshakeRejected()       {}
func (nopMetrics) Broadcast(DeliveryReport) {}
func (nopMetrics) PersistFailed(string)     {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
