package engine

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"litreview/internal/config"
	"litreview/internal/gateway"
	"litreview/internal/ratelimit"
	"litreview/internal/review"

	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	calls []string
	resp  map[string]any
	fail  map[string]error
}

func (f *fakeCompleter) CompleteStructured(_ context.Context, eng config.EngineConfig, _ gateway.ChatRequest) (map[string]any, error) {
	f.calls = append(f.calls, eng.Model)
	if err := f.fail[eng.Model]; err != nil {
		return nil, err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return map[string]any{
		"summary":  "a perfectly adequate summary of the paper under review",
		"findings": "the findings section, long enough to pass downstream checks",
	}, nil
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testConfig() config.Config {
	return config.Config{
		Primary: config.EngineConfig{APIKey: "k1", Model: "primary-model", MaxTokens: 100},
		Backup:  config.EngineConfig{APIKey: "k2", Model: "backup-model", MaxTokens: 200},
	}
}

func newOrchestrator(t *testing.T, limits config.LimitsConfig, fc *fakeCompleter) *Orchestrator {
	t.Helper()
	o := New(testConfig(), ratelimit.NewLimiter(limits), fc, log.New(discardWriter{}, "", 0))
	o.sleep = func(time.Duration) {}
	return o
}

// Roughly 1500 estimated tokens: latin text counts one token per four letters.
func bigPrompt() string { return strings.Repeat("word ", 1500) }

func TestOversizedPromptFailsOverToBackup(t *testing.T) {
	fc := &fakeCompleter{}
	o := newOrchestrator(t, config.LimitsConfig{
		PrimaryTPM: 1000, PrimaryRPM: 10,
		BackupTPM: 5000, BackupRPM: 10,
	}, fc)

	s, eng, err := o.Summarize(context.Background(), "", bigPrompt())
	require.NoError(t, err)
	require.Equal(t, ratelimit.EngineBackup, eng)
	require.NotNil(t, s)
	require.Equal(t, []string{"backup-model"}, fc.calls, "primary must not be called for an oversized request")
}

func TestOversizedForBothEnginesIsTerminal(t *testing.T) {
	fc := &fakeCompleter{}
	o := newOrchestrator(t, config.LimitsConfig{
		PrimaryTPM: 1000, PrimaryRPM: 10,
		BackupTPM: 1000, BackupRPM: 10,
	}, fc)

	_, _, err := o.Summarize(context.Background(), "", bigPrompt())
	require.ErrorIs(t, err, ErrContentTooLarge)
	require.Empty(t, fc.calls)
}

func TestPrimaryCallFailureFallsBackToBackup(t *testing.T) {
	fc := &fakeCompleter{fail: map[string]error{"primary-model": errors.New("http 500: upstream sad")}}
	o := newOrchestrator(t, config.LimitsConfig{
		PrimaryTPM: 100000, PrimaryRPM: 100,
		BackupTPM: 100000, BackupRPM: 100,
	}, fc)

	_, eng, err := o.Summarize(context.Background(), "sys", "short prompt")
	require.NoError(t, err)
	require.Equal(t, ratelimit.EngineBackup, eng)
	require.Equal(t, []string{"primary-model", "backup-model"}, fc.calls)
}

func TestBothEnginesFailingReportsBoth(t *testing.T) {
	fc := &fakeCompleter{fail: map[string]error{
		"primary-model": errors.New("primary boom"),
		"backup-model":  errors.New("backup boom"),
	}}
	o := newOrchestrator(t, config.LimitsConfig{
		PrimaryTPM: 100000, PrimaryRPM: 100,
		BackupTPM: 100000, BackupRPM: 100,
	}, fc)

	_, _, err := o.Summarize(context.Background(), "sys", "short prompt")
	require.Error(t, err)
	require.Contains(t, err.Error(), "primary boom")
	require.Contains(t, err.Error(), "backup boom")
}

type scriptedLimiter struct {
	decisions []ratelimit.Decision
	calls     int
}

func (s *scriptedLimiter) Consume(_, _ int, _ ratelimit.Engine) (ratelimit.Decision, error) {
	d := s.decisions[s.calls]
	s.calls++
	return d, nil
}

func (s *scriptedLimiter) EngineStatus(_ ratelimit.Engine) (ratelimit.Status, error) {
	return ratelimit.Status{TPMAvailable: 12, TPMCapacity: 1000, RPMAvailable: 3, RPMCapacity: 60}, nil
}

func TestRateStarvedPrimaryWaitsOnceThenUsesBackup(t *testing.T) {
	fc := &fakeCompleter{}
	lim := &scriptedLimiter{decisions: []ratelimit.Decision{
		{Verdict: ratelimit.RetryAfter, Wait: 10 * time.Second},
		{Verdict: ratelimit.RetryAfter, Wait: 10 * time.Second},
		{Verdict: ratelimit.Allow},
	}}
	var logs bytes.Buffer
	o := New(testConfig(), lim, fc, log.New(&logs, "", 0))
	var slept []time.Duration
	o.sleep = func(d time.Duration) { slept = append(slept, d) }

	_, eng, err := o.Summarize(context.Background(), "sys", "short prompt")
	require.NoError(t, err)
	require.Equal(t, ratelimit.EngineBackup, eng)
	require.Equal(t, 3, lim.calls)
	require.Equal(t, []time.Duration{10 * time.Second}, slept, "only one wait per engine")
	require.Equal(t, []string{"backup-model"}, fc.calls)
	require.Contains(t, logs.String(), "tpm 12/1000", "budget snapshot is logged while waiting")
}

func TestSummaryNormalizationFlattensCommonCore(t *testing.T) {
	fc := &fakeCompleter{resp: map[string]any{
		"common_core": map[string]any{
			"summary":  "nested summary text pulled up from the legacy layout",
			"findings": "nested findings text pulled up from the legacy layout",
		},
		"authors": "Single Author",
	}}
	o := newOrchestrator(t, config.LimitsConfig{
		PrimaryTPM: 100000, PrimaryRPM: 100,
		BackupTPM: 100000, BackupRPM: 100,
	}, fc)

	s, _, err := o.Summarize(context.Background(), "sys", "short prompt")
	require.NoError(t, err)
	require.Equal(t, "nested summary text pulled up from the legacy layout", s.Summary)
	require.Equal(t, []string{"Single Author"}, s.Authors)
	require.Equal(t, review.Placeholder, s.Methodology)
	require.NotNil(t, s.KeyPoints)
}

func TestSummarizeBackupSkipsPrimary(t *testing.T) {
	fc := &fakeCompleter{}
	o := newOrchestrator(t, config.LimitsConfig{
		PrimaryTPM: 100000, PrimaryRPM: 100,
		BackupTPM: 100000, BackupRPM: 100,
	}, fc)

	_, err := o.SummarizeBackup(context.Background(), "sys", "short prompt")
	require.NoError(t, err)
	require.Equal(t, []string{"backup-model"}, fc.calls)
}
