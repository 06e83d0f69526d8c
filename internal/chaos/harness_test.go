package chaos

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI simulates a deployment: healthy configs complete jobs, full
// failure rate or an induced delay dead-letters them.
type fakeAPI struct {
	mu      sync.Mutex
	cfg     WorkerConfig
	updates []WorkerConfig
	dlq     int
	results map[string]json.RawMessage
	urlToFP map[string]string

	admitErr error
	cfgErr   error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		results: make(map[string]json.RawMessage),
		urlToFP: make(map[string]string),
	}
}

func fpFor(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])[:32]
}

func (f *fakeAPI) GetWorkerConfig(context.Context) (WorkerConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfgErr != nil {
		return WorkerConfig{}, f.cfgErr
	}
	return f.cfg, nil
}

func (f *fakeAPI) UpdateWorkerConfig(_ context.Context, cfg WorkerConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	f.updates = append(f.updates, cfg)
	return nil
}

func (f *fakeAPI) Admit(_ context.Context, _, filename, _ string, _, _ int64) (AdmissionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.admitErr != nil {
		return AdmissionResponse{}, f.admitErr
	}

	fp := fpFor(filename)
	if result, ok := f.results[fp]; ok {
		return AdmissionResponse{
			Cached:      true,
			Fingerprint: fp,
			Status:      "completed",
			Result:      result,
		}, nil
	}

	u := "http://fake/" + filename
	f.urlToFP[u] = fp
	return AdmissionResponse{
		Fingerprint: fp,
		Upload: &UploadTarget{
			URL:     u,
			Method:  "PUT",
			Headers: map[string]string{"Content-Type": "video/mp4"},
		},
	}, nil
}

func (f *fakeAPI) Upload(_ context.Context, target *UploadTarget, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, ok := f.urlToFP[target.URL]
	if !ok {
		return errors.New("unknown upload target")
	}

	if f.cfg.FailureRate >= 1 || f.cfg.InducedDelaySeconds > 0 {
		f.dlq++
		return nil
	}

	f.results[fp] = json.RawMessage(fmt.Sprintf(`{"score":80,"fingerprint":%q}`, fp))
	return nil
}

func (f *fakeAPI) GetStatus(_ context.Context, _, fp string) (StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if result, ok := f.results[fp]; ok {
		return StatusResponse{Status: "completed", Data: result}, nil
	}
	return StatusResponse{Status: "processing"}, nil
}

func (f *fakeAPI) DeadLetterCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dlq, nil
}

func (f *fakeAPI) DrainDeadLetters(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.dlq
	f.dlq = 0
	return n, nil
}

func (f *fakeAPI) RedriveDeadLetters(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.dlq
	f.dlq = 0
	return n, nil
}

func (f *fakeAPI) currentConfig() WorkerConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeAPI) sawFailureRate(rate float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.updates {
		if u.FailureRate == rate {
			return true
		}
	}
	return false
}

func testOptions() Options {
	return Options{
		OwnerID:            "chaos-owner",
		ResultPollTimeout:  500 * time.Millisecond,
		ResultPollInterval: time.Millisecond,
		DLQPollTimeout:     500 * time.Millisecond,
		DLQPollInterval:    time.Millisecond,
		InducedDelay:       5 * time.Second,
	}
}

func TestHarness_RunAllPhases(t *testing.T) {
	api := newFakeAPI()
	api.cfg = WorkerConfig{CircuitOpen: true} // pre-existing operator state

	h := NewHarness(api, testOptions(), slog.Default())

	report, err := h.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Phases, 4)
	for _, phase := range report.Phases {
		assert.True(t, phase.Passed, "phase %s: %s", phase.Name, phase.Error)
	}
	assert.True(t, report.Passed())

	assert.True(t, api.sawFailureRate(1.0), "the failure experiment must inject rate 1.0")

	// Whatever the phases did, the pre-test config is what remains.
	assert.Equal(t, WorkerConfig{CircuitOpen: true}, api.currentConfig())
}

func TestHarness_RestoresOnPhaseFailure(t *testing.T) {
	api := newFakeAPI()
	api.cfg = WorkerConfig{FailureRate: 0.25}
	api.admitErr = errors.New("api unreachable")

	h := NewHarness(api, testOptions(), slog.Default())

	report, err := h.Run(context.Background())
	require.NoError(t, err, "phase failures are reported, not returned")

	assert.False(t, report.Passed())
	assert.Equal(t, WorkerConfig{FailureRate: 0.25}, api.currentConfig(),
		"the snapshot must be restored even when every phase fails")
}

func TestHarness_ApplyRequiresSnapshot(t *testing.T) {
	h := NewHarness(newFakeAPI(), testOptions(), slog.Default())

	err := h.Apply(context.Background(), WorkerConfig{FailureRate: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot")
}

func TestHarness_RestoreIsIdempotent(t *testing.T) {
	api := newFakeAPI()
	api.cfg = WorkerConfig{Paused: true}

	h := NewHarness(api, testOptions(), slog.Default())
	require.NoError(t, h.Snapshot(context.Background()))
	require.NoError(t, h.Apply(context.Background(), WorkerConfig{FailureRate: 1}))

	require.NoError(t, h.Restore())
	updatesAfterFirst := len(api.updates)

	require.NoError(t, h.Restore())
	assert.Equal(t, updatesAfterFirst, len(api.updates), "second restore must be a no-op")
	assert.Equal(t, WorkerConfig{Paused: true}, api.currentConfig())
}

func TestHarness_SnapshotFailureAbortsRun(t *testing.T) {
	api := newFakeAPI()
	api.cfgErr = errors.New("config endpoint down")

	h := NewHarness(api, testOptions(), slog.Default())

	_, err := h.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, api.updates, "no fault may be applied without a snapshot")
}

func TestNewArtifact_UniqueTriples(t *testing.T) {
	a := newArtifact()
	b := newArtifact()

	assert.NotEqual(t, a.name, b.name)
	assert.True(t, strings.HasSuffix(a.name, ".mp4"))
	assert.Equal(t, int64(len(a.body)), a.size)
}
