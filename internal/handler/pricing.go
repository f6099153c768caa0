package handler

import (
	"net/http"

	"github.com/matthewbaird/rentpulse/internal/pricing"
	"github.com/matthewbaird/rentpulse/internal/renter"
	"github.com/matthewbaird/rentpulse/internal/types"
)

// PricingHandler serves the stateless scoring endpoints: landlord
// recommendations, renter deals and portfolio rollups.
type PricingHandler struct{}

func NewPricingHandler() *PricingHandler {
	return &PricingHandler{}
}

// UnitInput is one unit to score. Market is optional.
type UnitInput struct {
	Snapshot types.UnitSnapshot   `json:"snapshot"`
	Market   *types.MarketContext `json:"market,omitempty"`
}

// UnitsRequest is the body of the multi-unit endpoints.
type UnitsRequest struct {
	Units []UnitInput `json:"units"`
}

// RenterSummaryResponse pairs per-unit deals with the market rollup.
type RenterSummaryResponse struct {
	Summary types.RenterMarketSummary      `json:"summary"`
	Deals   []types.RenterDealIntelligence `json:"deals"`
}

// PortfolioResponse is the portfolio rollup plus readable insights.
type PortfolioResponse struct {
	Summary  pricing.PortfolioSummary `json:"summary"`
	Insights []string                 `json:"insights"`
}

// Recommend handles POST /v1/recommendations.
func (h *PricingHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	var in UnitInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := pricing.Validate(in.Snapshot); err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pricing.GenerateRecommendation(in.Snapshot, in.Market))
}

// Deals handles POST /v1/renter/deals.
func (h *PricingHandler) Deals(w http.ResponseWriter, r *http.Request) {
	deals, ok := h.renterDeals(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deals": deals})
}

// Summary handles POST /v1/renter/summary.
func (h *PricingHandler) Summary(w http.ResponseWriter, r *http.Request) {
	deals, ok := h.renterDeals(w, r)
	if !ok {
		return
	}
	summary, err := renter.GenerateMarketSummary(deals)
	if err != nil {
		errorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RenterSummaryResponse{Summary: summary, Deals: deals})
}

// Portfolio handles POST /v1/portfolio/analysis.
func (h *PricingHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	var req UnitsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	recs := make([]types.PricingRecommendation, 0, len(req.Units))
	for _, u := range req.Units {
		if err := pricing.Validate(u.Snapshot); err != nil {
			errorToHTTP(w, err)
			return
		}
		recs = append(recs, pricing.GenerateRecommendation(u.Snapshot, u.Market))
	}
	summary := pricing.AnalyzePortfolio(recs)
	writeJSON(w, http.StatusOK, PortfolioResponse{
		Summary:  summary,
		Insights: pricing.PortfolioInsights(summary),
	})
}

// renterDeals scores every unit and turns it into renter-facing deal
// intelligence. The first invalid snapshot fails the request.
func (h *PricingHandler) renterDeals(w http.ResponseWriter, r *http.Request) ([]types.RenterDealIntelligence, bool) {
	var req UnitsRequest
	if !decodeJSON(w, r, &req) {
		return nil, false
	}
	deals := make([]types.RenterDealIntelligence, 0, len(req.Units))
	for _, u := range req.Units {
		if err := pricing.Validate(u.Snapshot); err != nil {
			errorToHTTP(w, err)
			return nil, false
		}
		rec := pricing.GenerateRecommendation(u.Snapshot, u.Market)
		deals = append(deals, renter.Transform(u.Snapshot, &rec))
	}
	return deals, true
}
