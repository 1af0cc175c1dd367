package metrics

import (
	"fmt"

	dto "github.com/prometheus/client_model/go"
)

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	return fetchCounter(mfs, name, map[string]string{label: value})
}

// fetchCounter returns the counter whose labels include every pair in want.
func fetchCounter(mfs []*dto.MetricFamily, name string, want map[string]string) (float64, error) {
	metric, err := findMetric(mfs, name, want)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchHistogramCount(mfs []*dto.MetricFamily, name string, want map[string]string) (uint64, error) {
	metric, err := findMetric(mfs, name, want)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleCount(), nil
}

func findMetric(mfs []*dto.MetricFamily, name string, want map[string]string) (*dto.Metric, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if hasLabels(metric.GetLabel(), want) {
				return metric, nil
			}
		}
		return nil, fmt.Errorf("metric %q has no series with labels %v", name, want)
	}
	return nil, fmt.Errorf("metric %q not found", name)
}

func hasLabels(labels []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, label := range labels {
		if v, ok := want[label.GetName()]; ok && v == label.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
