package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Result
	}{
		{
			name:    "flat document",
			payload: `{"score": 85, "transcript": "clear lighting", "feedback": "good focus", "key_strengths": ["sharp focus"], "areas_for_improvement": ["adjust white balance"]}`,
			want: Result{
				Score:               85,
				Status:              ResultStatusCompleted,
				Transcript:          "clear lighting",
				Feedback:            "good focus",
				KeyStrengths:        []string{"sharp focus"},
				AreasForImprovement: []string{"adjust white balance"},
			},
		},
		{
			name:    "nested under content",
			payload: `{"content": {"score": 60, "transcript": "t", "feedback": "f"}}`,
			want: Result{
				Score:               60,
				Status:              ResultStatusCompleted,
				Transcript:          "t",
				Feedback:            "f",
				KeyStrengths:        []string{},
				AreasForImprovement: []string{},
			},
		},
		{
			name:    "nested under analysis",
			payload: `{"analysis": {"score": 40, "status": "review_required"}}`,
			want: Result{
				Score:               40,
				Status:              ResultStatusReviewRequired,
				KeyStrengths:        []string{},
				AreasForImprovement: []string{},
			},
		},
		{
			name:    "float score is truncated",
			payload: `{"score": 72.9}`,
			want: Result{
				Score:               72,
				Status:              ResultStatusCompleted,
				KeyStrengths:        []string{},
				AreasForImprovement: []string{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize([]byte(tt.payload))
			got.Raw = nil
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_ScoreClamped(t *testing.T) {
	assert.Equal(t, 100, Normalize([]byte(`{"score": 250}`)).Score)
	assert.Equal(t, 0, Normalize([]byte(`{"score": -5}`)).Score)
}

func TestNormalize_Unparseable(t *testing.T) {
	got := Normalize([]byte("not json at all"))

	assert.Equal(t, 0, got.Score)
	assert.Equal(t, ResultStatusReviewRequired, got.Status)
	assert.NotEmpty(t, got.Feedback)
	assert.Equal(t, []byte("not json at all"), []byte(got.Raw))
}

func TestNormalize_PreservesRawPayload(t *testing.T) {
	payload := `{"score": 10, "extra_field": "kept"}`
	got := Normalize([]byte(payload))
	assert.JSONEq(t, payload, string(got.Raw))
}

func TestDegradedResult(t *testing.T) {
	got := DegradedResult("analysis service unhealthy")

	assert.Equal(t, ResultStatusDegraded, got.Status)
	assert.Equal(t, 0, got.Score)
	assert.Contains(t, got.Feedback, "unhealthy")
	assert.NotNil(t, got.KeyStrengths)
	assert.NotNil(t, got.AreasForImprovement)
}
