package trainer

import "github.com/QsingularityAi/IoTIntel-StreamSense/internal/domain"

// evaluate compares predicted anomaly verdicts against labels. Every
// ratio with a zero denominator reports 0 rather than NaN.
func evaluate(predicted, labels []bool) domain.EvaluationMetrics {
	var m domain.EvaluationMetrics

	for i, pred := range predicted {
		actual := labels[i]
		switch {
		case pred && actual:
			m.ConfusionMatrix.TruePositives++
		case pred && !actual:
			m.ConfusionMatrix.FalsePositives++
		case !pred && actual:
			m.ConfusionMatrix.FalseNegatives++
		default:
			m.ConfusionMatrix.TrueNegatives++
		}
	}

	tp := float64(m.ConfusionMatrix.TruePositives)
	fp := float64(m.ConfusionMatrix.FalsePositives)
	fn := float64(m.ConfusionMatrix.FalseNegatives)

	if tp+fp > 0 {
		m.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		m.Recall = tp / (tp + fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1Score = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}

	return m
}
