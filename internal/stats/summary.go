package stats

import "math"

// RunSummary condenses a best-fitness series.
type RunSummary struct {
	RunID       string  `json:"run_id"`
	Generations int     `json:"generations"`
	InitialBest float64 `json:"initial_best"`
	FinalBest   float64 `json:"final_best"`
	BestMean    float64 `json:"best_mean"`
	BestStd     float64 `json:"best_std"`
	BestMax     float64 `json:"best_max"`
	BestMin     float64 `json:"best_min"`
	Improvement float64 `json:"improvement"`
	// Plateau counts trailing generations that did not beat the run's best
	// before them.
	Plateau int `json:"plateau"`
}

func Summarize(runID string, bestByGeneration []float64) RunSummary {
	summary := RunSummary{RunID: runID, Generations: len(bestByGeneration)}
	if len(bestByGeneration) == 0 {
		return summary
	}
	summary.InitialBest = bestByGeneration[0]
	summary.FinalBest = bestByGeneration[len(bestByGeneration)-1]
	summary.BestMean, summary.BestStd = avgStd(bestByGeneration)
	summary.BestMax = maxFloat(bestByGeneration)
	summary.BestMin = minFloat(bestByGeneration)
	summary.Improvement = summary.FinalBest - summary.InitialBest
	summary.Plateau = plateau(bestByGeneration)
	return summary
}

func plateau(series []float64) int {
	peak := 0
	for i, value := range series {
		if value > series[peak] {
			peak = i
		}
	}
	return len(series) - 1 - peak
}

func avgStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, value := range values {
		sum += value
	}
	avg := sum / float64(len(values))
	variance := 0.0
	for _, value := range values {
		variance += (value - avg) * (value - avg)
	}
	return avg, math.Sqrt(variance / float64(len(values)))
}

func maxFloat(values []float64) float64 {
	max := values[0]
	for _, value := range values[1:] {
		if value > max {
			max = value
		}
	}
	return max
}

func minFloat(values []float64) float64 {
	min := values[0]
	for _, value := range values[1:] {
		if value < min {
			min = value
		}
	}
	return min
}
