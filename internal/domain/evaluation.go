package domain

// ConfusionMatrix holds binary classification counts from a held-out
// evaluation split.
type ConfusionMatrix struct {
	TrueNegatives  int `json:"true_negatives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`
	TruePositives  int `json:"true_positives"`
}

// EvaluationMetrics summarizes a training run's held-out performance for
// one signal. Precision and recall are defined as 0 when their
// denominator is 0.
type EvaluationMetrics struct {
	Precision       float64         `json:"precision"`
	Recall          float64         `json:"recall"`
	F1Score         float64         `json:"f1_score"`
	ConfusionMatrix ConfusionMatrix `json:"confusion_matrix"`
}
