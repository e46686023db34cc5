package pyramidutil

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mrjoshuak/go-pyramid/pyramid"
)

// ChannelStats summarizes one channel of a level.
type ChannelStats struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// LevelStats computes per-channel statistics of a level tile by tile in a
// read session. Only one tile is held in memory at a time.
func LevelStats(p *pyramid.Pyramid, level int) ([]ChannelStats, error) {
	lv, err := p.LevelInfo(level)
	if err != nil {
		return nil, err
	}
	if level < 0 {
		level = p.LevelCount() - 1
	}
	a, err := p.Access(pyramid.ModeRead)
	if err != nil {
		return nil, err
	}
	defer a.Release()

	channels := p.Channels()
	var (
		means   = make([][]float64, channels)
		vars    = make([][]float64, channels)
		weights []float64
		mins    = make([]float64, channels)
		maxs    = make([]float64, channels)
		values  []float64
	)
	for c := range mins {
		mins[c], maxs[c] = math.Inf(1), math.Inf(-1)
	}

	for id := range Patches(lv, level) {
		patch, err := a.Patch(id.Level, id.X, id.Y)
		if err != nil {
			return nil, err
		}
		n := patch.Width * patch.Height
		if cap(values) < n {
			values = make([]float64, n)
		}
		values = values[:n]

		for c := 0; c < channels; c++ {
			for i := range values {
				values[i] = float64(patch.Data[i*channels+c])
			}
			m, v := stat.MeanVariance(values, nil)
			if n == 1 {
				v = 0
			}
			means[c] = append(means[c], m)
			vars[c] = append(vars[c], v)
			mins[c] = min(mins[c], floats.Min(values))
			maxs[c] = max(maxs[c], floats.Max(values))
		}
		weights = append(weights, float64(n))
	}

	total := floats.Sum(weights)
	out := make([]ChannelStats, channels)
	for c := range out {
		mean := stat.Mean(means[c], weights)
		// Pooled variance of the tile groups
		var ss float64
		for i, w := range weights {
			d := means[c][i] - mean
			ss += (w-1)*vars[c][i] + w*d*d
		}
		var sd float64
		if total > 1 {
			sd = math.Sqrt(ss / (total - 1))
		}
		out[c] = ChannelStats{Mean: mean, StdDev: sd, Min: mins[c], Max: maxs[c]}
	}
	return out, nil
}
