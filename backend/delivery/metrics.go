// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package delivery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts Service operations by outcome.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mlsds",
			Subsystem: "delivery",
			Name:      "operations_total",
			Help:      "Delivery service operations by outcome kind.",
		}, []string{"op", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mlsds",
			Subsystem: "delivery",
			Name:      "operation_duration_seconds",
			Help:      "Delivery service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(m.operations, m.duration)
	return m
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	kind := "ok"
	if err != nil {
		kind = KindOf(err).String()
	}
	m.operations.WithLabelValues(op, kind).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
