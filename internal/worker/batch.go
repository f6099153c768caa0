package worker

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/matthewbaird/rentpulse/internal/automation"
	"github.com/matthewbaird/rentpulse/internal/pricing"
	"github.com/matthewbaird/rentpulse/internal/types"
)

// Evaluator runs the rule engine for one unit.
type Evaluator interface {
	EvaluateUnit(ctx context.Context, in automation.Evaluation) ([]types.PendingAction, error)
}

// BatchItem is one unit in a batch run.
type BatchItem struct {
	Snapshot   types.UnitSnapshot       `json:"snapshot"`
	Market     *types.MarketContext     `json:"market,omitempty"`
	Competitor *types.CompetitorContext `json:"competitor,omitempty"`
	Seasonal   *types.SeasonalContext   `json:"seasonal,omitempty"`
}

// BatchResult is the outcome for one unit. Error is set when the snapshot was
// rejected, the evaluation failed, or the batch stopped before reaching it.
type BatchResult struct {
	UnitID         string                       `json:"unit_id"`
	Recommendation *types.PricingRecommendation `json:"recommendation,omitempty"`
	Actions        []types.PendingAction        `json:"actions,omitempty"`
	Error          string                       `json:"error,omitempty"`
}

// BatchEvaluator scores and evaluates many units with bounded concurrency.
type BatchEvaluator struct {
	engine Evaluator
	limit  int
}

func NewBatchEvaluator(engine Evaluator, limit int) *BatchEvaluator {
	if limit < 1 {
		limit = 8
	}
	return &BatchEvaluator{engine: engine, limit: limit}
}

// errSkipped marks units never evaluated because the batch was aborted.
const errSkipped = "not evaluated: batch aborted"

// Run evaluates items and returns results in input order. Invalid snapshots
// are reported per item. A storage failure aborts the batch; Run then returns
// the partial results with the error, since earlier units may already have
// persisted or executed actions.
func (b *BatchEvaluator) Run(ctx context.Context, items []BatchItem) ([]BatchResult, error) {
	results := make([]BatchResult, len(items))
	for i, item := range items {
		results[i] = BatchResult{UnitID: item.Snapshot.UnitID, Error: errSkipped}
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.limit)

	for i, item := range items {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res := BatchResult{UnitID: item.Snapshot.UnitID}
			if err := pricing.Validate(item.Snapshot); err != nil {
				var verr *pricing.ValidationError
				if !errors.As(err, &verr) {
					return err
				}
				res.Error = verr.Error()
				results[i] = res
				return nil
			}

			rec := pricing.GenerateRecommendation(item.Snapshot, item.Market)
			res.Recommendation = &rec
			actions, err := b.engine.EvaluateUnit(ctx, automation.Evaluation{
				Snapshot:       item.Snapshot,
				Recommendation: rec,
				Competitor:     item.Competitor,
				Seasonal:       item.Seasonal,
			})
			res.Actions = actions
			if err != nil {
				res.Error = err.Error()
				results[i] = res
				return fmt.Errorf("unit %s: %w", item.Snapshot.UnitID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
