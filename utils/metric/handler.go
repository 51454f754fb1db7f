// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utilmetric

import (
	"net/http"

	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dto "github.com/prometheus/client_model/go"
)

// Handler serves the families collected by gatherer in the prometheus text
// exposition format.
func Handler(gatherer metric.Gatherer) http.Handler {
	return promhttp.HandlerFor(
		prometheus.GathererFunc(func() ([]*dto.MetricFamily, error) {
			families, err := gatherer.Gather()
			return metric.NativeToDTO(families), err
		}),
		promhttp.HandlerOpts{},
	)
}

// Value returns the value of the series name{labels} in gatherer, and
// whether it was found.
func Value(gatherer metric.Gatherer, name string, labels metric.Labels) (float64, bool, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return 0, false, err
	}
	for _, family := range families {
		if family.Name != name {
			continue
		}
		for _, m := range family.Metrics {
			if matches(m.Labels, labels) {
				return m.Value.Value, true, nil
			}
		}
	}
	return 0, false, nil
}

func matches(pairs []metric.LabelPair, labels metric.Labels) bool {
	if len(pairs) != len(labels) {
		return false
	}
	for _, pair := range pairs {
		if v, ok := labels[pair.Name]; !ok || v != pair.Value {
			return false
		}
	}
	return true
}
