package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lumohealth/challenge-engine/internal/models"
)

// stubProvider is a scriptable in-memory provider.
type stubProvider struct {
	name       string
	cost       float64
	timeout    time.Duration
	confidence float64
	err        error
	delay      time.Duration
	calls      int
}

func (s *stubProvider) Name() string            { return s.name }
func (s *stubProvider) CostPerRequest() float64 { return s.cost }
func (s *stubProvider) Timeout() time.Duration  { return s.timeout }

func (s *stubProvider) Analyze(ctx context.Context, _ Payload, _ models.AnalysisType) (*models.AIAnalysis, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &models.AIAnalysis{Result: json.RawMessage(`{}`), Confidence: s.confidence}, nil
}

func samplePayload() Payload {
	return Payload{
		RecordType: models.ChallengeTypeColorfulDiet,
		Data:       models.RecordData{Colors: []string{"red", "green"}},
	}
}

func TestAnnotateFallsBackToNextProvider(t *testing.T) {
	ledger := NewCostLedger(10, 100)
	a := &stubProvider{name: "openai", cost: 0.05, err: errors.New("rate limited")}
	b := &stubProvider{name: "claude", cost: 0.02, confidence: 0.9}

	o := NewOrchestrator([]Provider{a, b}, ledger, 0)
	got, err := o.Annotate(context.Background(), samplePayload(), models.AnalysisTypeFoodRecognition)
	if err != nil {
		t.Fatalf("Annotate error: %v", err)
	}
	if got.Provider != "claude" {
		t.Errorf("expected fallback provider claude, got %s", got.Provider)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("expected both providers called once, got %d/%d", a.calls, b.calls)
	}
	// Only the succeeding provider's cost is charged.
	daily, monthly := ledger.Spent()
	if daily != 0.02 || monthly != 0.02 {
		t.Errorf("expected only claude cost charged, got daily=%v monthly=%v", daily, monthly)
	}
}

func TestAnnotateAllProvidersFail(t *testing.T) {
	a := &stubProvider{name: "openai", err: errors.New("down")}
	b := &stubProvider{name: "claude", err: errors.New("down too")}
	o := NewOrchestrator([]Provider{a, b}, NewCostLedger(10, 100), 0)

	_, err := o.Annotate(context.Background(), samplePayload(), models.AnalysisTypeFoodRecognition)
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestAnnotateCostCeilingFailsFast(t *testing.T) {
	ledger := NewCostLedger(0.10, 100)
	ledger.Add(0.10)

	a := &stubProvider{name: "openai", cost: 0.05, confidence: 0.9}
	o := NewOrchestrator([]Provider{a}, ledger, 0)

	_, err := o.Annotate(context.Background(), samplePayload(), models.AnalysisTypeFoodRecognition)
	if !errors.Is(err, ErrCostLimitExceeded) {
		t.Fatalf("expected ErrCostLimitExceeded, got %v", err)
	}
	if a.calls != 0 {
		t.Errorf("no provider should be contacted when ceiling is hit, got %d calls", a.calls)
	}
	if daily, _ := ledger.Spent(); daily != 0.10 {
		t.Errorf("ledger must be unchanged by a blocked call, got %v", daily)
	}
}

func TestAnnotateProviderTimeoutFallsThrough(t *testing.T) {
	slow := &stubProvider{name: "openai", timeout: 10 * time.Millisecond, delay: time.Second}
	fast := &stubProvider{name: "claude", cost: 0.01, confidence: 0.85}
	o := NewOrchestrator([]Provider{slow, fast}, NewCostLedger(10, 100), 0)

	got, err := o.Annotate(context.Background(), samplePayload(), models.AnalysisTypeFoodRecognition)
	if err != nil {
		t.Fatalf("Annotate error: %v", err)
	}
	if got.Provider != "claude" {
		t.Errorf("expected timeout fallthrough to claude, got %s", got.Provider)
	}
}

func TestAnnotateLowConfidenceIsFlaggedNotFailed(t *testing.T) {
	p := &stubProvider{name: "openai", cost: 0.01, confidence: 0.4}
	o := NewOrchestrator([]Provider{p}, nil, 0.7)

	got, err := o.Annotate(context.Background(), samplePayload(), models.AnalysisTypeFoodRecognition)
	if err != nil {
		t.Fatalf("low confidence must not be an error: %v", err)
	}
	if !got.LowConfidence {
		t.Error("expected LowConfidence flag")
	}
}

func TestAnnotateNoProviders(t *testing.T) {
	o := NewOrchestrator(nil, nil, 0)
	if _, err := o.Annotate(context.Background(), samplePayload(), models.AnalysisTypeFoodRecognition); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders, got %v", err)
	}
}

func TestCostLedgerWindowRollover(t *testing.T) {
	ledger := NewCostLedger(1.0, 5.0)
	current := time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return current }

	ledger.Add(1.0)
	if !ledger.Exceeded() {
		t.Fatal("daily ceiling should be hit")
	}

	// Next day resets the daily window but not the monthly one.
	current = current.Add(2 * time.Hour)
	if ledger.Exceeded() {
		t.Fatal("daily window should have rolled over")
	}
	daily, monthly := ledger.Spent()
	if daily != 0 {
		t.Errorf("daily spend should reset, got %v", daily)
	}
	if monthly != 0 {
		t.Errorf("month boundary also passed, monthly should reset, got %v", monthly)
	}

	// Monthly ceiling holds within one month.
	ledger.Add(5.0)
	if !ledger.Exceeded() {
		t.Fatal("monthly ceiling should be hit")
	}
	current = current.Add(24 * time.Hour)
	if !ledger.Exceeded() {
		t.Fatal("monthly ceiling persists across days")
	}
}

func TestParseModelOutput(t *testing.T) {
	result, conf := parseModelOutput(`{"items": ["apple"], "confidence": 0.92}`)
	if conf != 0.92 {
		t.Errorf("expected confidence 0.92, got %v", conf)
	}
	var parsed map[string]any
	if err := json.Unmarshal(result, &parsed); err != nil {
		t.Fatalf("result not valid JSON: %v", err)
	}

	// Fenced output.
	_, conf = parseModelOutput("```json\n{\"confidence\": 0.5}\n```")
	if conf != 0.5 {
		t.Errorf("fenced JSON not parsed, got confidence %v", conf)
	}

	// Plain text falls back to the default confidence.
	result, conf = parseModelOutput("cannot analyze this")
	if conf != DefaultProviderConfidence {
		t.Errorf("expected default confidence, got %v", conf)
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		t.Fatalf("wrapped result not valid JSON: %v", err)
	}
}

func TestAnalysisTypeFor(t *testing.T) {
	cases := map[models.ChallengeType]models.AnalysisType{
		models.ChallengeTypeColorfulDiet:        models.AnalysisTypeFoodRecognition,
		models.ChallengeTypeDIIAnalysis:         models.AnalysisTypeDIIScoring,
		models.ChallengeTypeIntermittentFasting: models.AnalysisTypeRiskDetection,
		models.ChallengeTypeWaterIntake:         "",
	}
	for ct, want := range cases {
		if got := AnalysisTypeFor(ct); got != want {
			t.Errorf("AnalysisTypeFor(%s) = %s, want %s", ct, got, want)
		}
	}
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(0.95)
	got, err := p.Analyze(context.Background(), samplePayload(), models.AnalysisTypeFoodRecognition)
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if got.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %v", got.Confidence)
	}
	var parsed map[string]any
	if err := json.Unmarshal(got.Result, &parsed); err != nil {
		t.Fatalf("result not valid JSON: %v", err)
	}
}
