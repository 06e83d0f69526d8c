package analysis

import "encoding/json"

// Result statuses embedded in the result document.
const (
	ResultStatusCompleted      = "completed"
	ResultStatusDegraded       = "degraded"
	ResultStatusReviewRequired = "review_required"
)

// Result is the canonical analysis result document. It is written once by
// the worker that produced it and never mutated afterwards.
type Result struct {
	Score               int             `json:"score"`
	Status              string          `json:"status"`
	Transcript          string          `json:"transcript"`
	Feedback            string          `json:"feedback"`
	KeyStrengths        []string        `json:"key_strengths"`
	AreasForImprovement []string        `json:"areas_for_improvement"`
	Raw                 json.RawMessage `json:"raw,omitempty"`
}

// rawResult mirrors the loose shape the analysis backend may return: fields
// can be missing, the score can arrive as a float, and some backends nest
// the document under "content" or "analysis".
type rawResult struct {
	Content             *rawResult      `json:"content"`
	Analysis            *rawResult      `json:"analysis"`
	Score               *float64        `json:"score"`
	Status              string          `json:"status"`
	Transcript          string          `json:"transcript"`
	Feedback            string          `json:"feedback"`
	KeyStrengths        []string        `json:"key_strengths"`
	AreasForImprovement []string        `json:"areas_for_improvement"`
}

// Normalize parses a backend payload into the canonical Result. The
// flatten/clamp work happens here, once, at the write boundary; readers only
// ever see the canonical shape. A payload that cannot be parsed at all
// yields a low-confidence fallback result rather than an error, matching
// the backend contract that any response is better than a lost one.
func Normalize(payload []byte) Result {
	var raw rawResult
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Result{
			Score:               0,
			Status:              ResultStatusReviewRequired,
			Transcript:          "Automated analysis (parsing error)",
			Feedback:            "The analysis backend returned an unparseable document. Please review manually.",
			KeyStrengths:        []string{},
			AreasForImprovement: []string{"Backend output formatting"},
			Raw:                 json.RawMessage(payload),
		}
	}

	// Some backends nest the document one level down.
	doc := &raw
	if doc.Content != nil {
		doc = doc.Content
	} else if doc.Analysis != nil {
		doc = doc.Analysis
	}

	res := Result{
		Status:              doc.Status,
		Transcript:          doc.Transcript,
		Feedback:            doc.Feedback,
		KeyStrengths:        doc.KeyStrengths,
		AreasForImprovement: doc.AreasForImprovement,
		Raw:                 json.RawMessage(payload),
	}

	if doc.Score != nil {
		res.Score = clampScore(int(*doc.Score))
	}
	if res.Status == "" {
		res.Status = ResultStatusCompleted
	}
	if res.KeyStrengths == nil {
		res.KeyStrengths = []string{}
	}
	if res.AreasForImprovement == nil {
		res.AreasForImprovement = []string{}
	}

	return res
}

// DegradedResult is written when the analysis dependency is known-unhealthy
// and the circuit breaker short-circuits the call.
func DegradedResult(reason string) Result {
	return Result{
		Score:               0,
		Status:              ResultStatusDegraded,
		Transcript:          "Analysis unavailable",
		Feedback:            reason,
		KeyStrengths:        []string{},
		AreasForImprovement: []string{"Resubmit once the analysis service recovers"},
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
