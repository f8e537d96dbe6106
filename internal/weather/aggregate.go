package weather

import (
	"math"
	"strconv"
)

// Aggregate averages each metric over the observations inside the window.
// Metrics are filtered for nil independently, so one average may be present
// while another is absent. Means are rounded half-to-even to 2 decimals.
func Aggregate(observations []Observation, window NightWindow) AggregateRecord {
	var temp, humidity, pressure, wind metricSum

	for _, o := range observations {
		if !window.Contains(o.Timestamp) {
			continue
		}
		temp.add(o.Temperature)
		humidity.add(o.Humidity)
		pressure.add(o.Pressure)
		wind.add(o.WindSpeed)
	}

	return AggregateRecord{
		AvgTempC:           temp.mean(),
		AvgHumidityPercent: humidity.mean(),
		AvgPressurePa:      pressure.mean(),
		AvgWindMps:         wind.mean(),
	}
}

type metricSum struct {
	sum float64
	n   int
}

func (m *metricSum) add(v *float64) {
	if v == nil || math.IsNaN(*v) {
		return
	}
	m.sum += *v
	m.n++
}

func (m metricSum) mean() *float64 {
	if m.n == 0 {
		return nil
	}
	v := round2(m.sum / float64(m.n))
	return &v
}

// round2 rounds the exact binary value to 2 decimals, ties to even. Scaling by
// 100 first would round twice.
func round2(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return r
}
