// ABOUTME: Classification metrics computed by direct counting of per-class tallies
// ABOUTME: Zero denominators yield 0.0, never NaN or an error

package evaluate

import "fmt"

// ClassMetrics holds the per-class scores.
type ClassMetrics struct {
	Precision float64
	Recall    float64
	F1        float64
}

// Report is the outcome of evaluating a prediction run.
type Report struct {
	Accuracy    float64
	PerClass    map[string]ClassMetrics
	SampleCount int
}

// Calculate computes accuracy and per-class precision/recall/F1 from label
// index slices. yTrue and yPred index into classNames. Metrics are tallied
// directly (true positive / false positive / false negative counts); a zero
// denominator produces 0.0 for that metric.
func Calculate(yTrue, yPred []int, classNames []string) (Report, error) {
	if len(yTrue) != len(yPred) {
		return Report{}, fmt.Errorf("label count mismatch: %d true vs %d predicted", len(yTrue), len(yPred))
	}

	tp := make([]int, len(classNames))
	fp := make([]int, len(classNames))
	fn := make([]int, len(classNames))

	correct := 0
	for i := range yTrue {
		truth, pred := yTrue[i], yPred[i]
		if truth < 0 || truth >= len(classNames) {
			return Report{}, fmt.Errorf("true label %d out of range", truth)
		}
		if pred < 0 || pred >= len(classNames) {
			return Report{}, fmt.Errorf("predicted label %d out of range", pred)
		}

		if truth == pred {
			correct++
			tp[truth]++
		} else {
			fn[truth]++
			fp[pred]++
		}
	}

	report := Report{
		PerClass:    make(map[string]ClassMetrics, len(classNames)),
		SampleCount: len(yTrue),
	}
	if len(yTrue) > 0 {
		report.Accuracy = float64(correct) / float64(len(yTrue))
	}

	for i, name := range classNames {
		var m ClassMetrics
		if tp[i]+fp[i] > 0 {
			m.Precision = float64(tp[i]) / float64(tp[i]+fp[i])
		}
		if tp[i]+fn[i] > 0 {
			m.Recall = float64(tp[i]) / float64(tp[i]+fn[i])
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.PerClass[name] = m
	}

	return report, nil
}

// Flatten renders the report as the flat metric map stored on a registry
// entry.
func (r Report) Flatten() map[string]float64 {
	out := make(map[string]float64, 1+3*len(r.PerClass))
	out["accuracy"] = r.Accuracy
	out["eval_samples"] = float64(r.SampleCount)
	for name, m := range r.PerClass {
		out["precision_"+name] = m.Precision
		out["recall_"+name] = m.Recall
		out["f1_"+name] = m.F1
	}
	return out
}
