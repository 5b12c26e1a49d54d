// Package analysis orchestrates AI annotation of daily records across
// interchangeable providers.
//
// Providers are tried in configured order with per-provider timeouts; a
// shared cost ledger enforces daily and monthly ceilings before any call is
// issued. Orchestration is safe to invoke concurrently for different
// records.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumohealth/challenge-engine/internal/models"
)

// DefaultConfidenceThreshold flags annotations for manual doctor review.
// Low confidence is metadata, never a call failure.
const DefaultConfidenceThreshold = 0.7

// Error variables for orchestration outcomes.
var (
	// ErrCostLimitExceeded means the ledger ceiling blocked the call before
	// any provider was contacted.
	ErrCostLimitExceeded = errors.New("ai cost limit exceeded")
	// ErrServiceUnavailable means every provider in the fallback list failed.
	ErrServiceUnavailable = errors.New("ai service unavailable")
	// ErrNoProviders means the orchestrator was built without providers.
	ErrNoProviders = errors.New("no ai providers configured")
)

// Payload carries the record content handed to a provider.
type Payload struct {
	RecordType models.ChallengeType
	Data       models.RecordData
	Notes      string
}

// Provider is one interchangeable analysis backend.
type Provider interface {
	Name() string
	CostPerRequest() float64
	Timeout() time.Duration
	Analyze(ctx context.Context, payload Payload, analysisType models.AnalysisType) (*models.AIAnalysis, error)
}

// Orchestrator tries providers in order until one succeeds, charging the
// shared cost ledger for each successful call.
type Orchestrator struct {
	providers []Provider
	ledger    *CostLedger
	threshold float64
}

// NewOrchestrator creates an Orchestrator over an ordered provider fallback
// list. A zero confidence threshold falls back to the default.
func NewOrchestrator(providers []Provider, ledger *CostLedger, confidenceThreshold float64) *Orchestrator {
	if confidenceThreshold <= 0 {
		confidenceThreshold = DefaultConfidenceThreshold
	}
	return &Orchestrator{providers: providers, ledger: ledger, threshold: confidenceThreshold}
}

// Annotate runs the fallback chain for one record payload.
//
// The ledger ceiling is checked before any provider call; when already
// exceeded it fails fast without contacting anyone. Provider errors and
// timeouts fall through to the next provider. Only the succeeding
// provider's cost is charged.
func (o *Orchestrator) Annotate(ctx context.Context, payload Payload, analysisType models.AnalysisType) (*models.AIAnalysis, error) {
	if len(o.providers) == 0 {
		return nil, ErrNoProviders
	}
	if o.ledger != nil && o.ledger.Exceeded() {
		slog.Warn("Annotate blocked by cost ceiling", "analysisType", analysisType)
		costLimitedTotal.Inc()
		return nil, ErrCostLimitExceeded
	}

	for i, p := range o.providers {
		if i > 0 {
			fallbacksTotal.Inc()
		}
		a, err := o.callProvider(ctx, p, payload, analysisType)
		if err != nil {
			providerCallsTotal.WithLabelValues(p.Name(), "error").Inc()
			slog.Warn("Provider call failed, trying next", "provider", p.Name(), "analysisType", analysisType, "error", err)
			if ctx.Err() != nil {
				// Caller cancelled; no point contacting further providers.
				break
			}
			continue
		}

		a.Provider = p.Name()
		a.AnalysisType = analysisType
		a.Cost = p.CostPerRequest()
		a.CreatedAt = time.Now()
		if a.Confidence < o.threshold {
			a.LowConfidence = true
			slog.Info("Annotation below confidence threshold", "provider", p.Name(), "confidence", a.Confidence, "threshold", o.threshold)
		}
		if o.ledger != nil {
			o.ledger.Add(a.Cost)
		}
		providerCallsTotal.WithLabelValues(p.Name(), "success").Inc()
		providerCostTotal.Add(a.Cost)
		slog.Debug("Annotate succeeded", "provider", p.Name(), "analysisType", analysisType, "confidence", a.Confidence, "cost", a.Cost)
		return a, nil
	}

	slog.Error("All providers failed", "analysisType", analysisType, "providers", len(o.providers))
	return nil, ErrServiceUnavailable
}

// callProvider issues one call under the provider's timeout and records its duration.
func (o *Orchestrator) callProvider(ctx context.Context, p Provider, payload Payload, analysisType models.AnalysisType) (*models.AIAnalysis, error) {
	callCtx := ctx
	if timeout := p.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	a, err := p.Analyze(callCtx, payload, analysisType)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.Name(), err)
	}
	if a == nil {
		return nil, fmt.Errorf("provider %s returned no analysis", p.Name())
	}
	a.ProcessingTime = elapsed
	return a, nil
}

// AnalysisTypeFor maps a challenge type to its configured annotation, or ""
// when the type has none.
func AnalysisTypeFor(ct models.ChallengeType) models.AnalysisType {
	switch ct {
	case models.ChallengeTypeColorfulDiet:
		return models.AnalysisTypeFoodRecognition
	case models.ChallengeTypeDIIAnalysis:
		return models.AnalysisTypeDIIScoring
	case models.ChallengeTypeIntermittentFasting:
		return models.AnalysisTypeRiskDetection
	default:
		return ""
	}
}
