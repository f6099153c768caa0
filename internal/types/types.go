// Package types holds the shared data model of the pricing pipeline: unit
// snapshots, landlord recommendations, automation rules and actions, and the
// renter-facing deal records. JSON tags use snake_case throughout.
package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// MarketVelocity is the qualitative speed of leasing activity around a unit.
type MarketVelocity string

const (
	VelocityHot    MarketVelocity = "hot"
	VelocityNormal MarketVelocity = "normal"
	VelocitySlow   MarketVelocity = "slow"
	VelocityStale  MarketVelocity = "stale"
)

// ConcessionUrgency grades how hard a landlord is leaning on concessions.
type ConcessionUrgency string

const (
	UrgencyNone       ConcessionUrgency = "none"
	UrgencyStandard   ConcessionUrgency = "standard"
	UrgencyAggressive ConcessionUrgency = "aggressive"
	UrgencyDesperate  ConcessionUrgency = "desperate"
)

type RentTrend string

const (
	TrendIncreasing RentTrend = "increasing"
	TrendStable     RentTrend = "stable"
	TrendDecreasing RentTrend = "decreasing"
)

// MarketPosition places a unit's rent relative to comparable units.
type MarketPosition string

const (
	PositionBelow MarketPosition = "below_market"
	PositionAt    MarketPosition = "at_market"
	PositionAbove MarketPosition = "above_market"
)

// UnitSnapshot is a point-in-time view of one rental unit. It is produced by
// the ingestion side and never mutated by the pricing pipeline.
type UnitSnapshot struct {
	UnitID       string `json:"unit_id"`
	PropertyName string `json:"property_name"`
	UnitNumber   string `json:"unit_number"`
	Address      string `json:"address"`
	Zip          string `json:"zip"`

	CurrentRent       float64 `json:"current_rent"`
	OriginalRent      float64 `json:"original_rent"`
	EffectiveRent     float64 `json:"effective_rent"`
	RentPerSquareFoot float64 `json:"rent_per_sqft"`

	Bedrooms   int     `json:"bedrooms"`
	Bathrooms  float64 `json:"bathrooms"`
	SquareFeet int     `json:"sqft"`
	Floor      int     `json:"floor,omitempty"`
	FloorPlan  string  `json:"floor_plan,omitempty"`

	DaysOnMarket   int            `json:"days_on_market"`
	FirstSeen      time.Time      `json:"first_seen"`
	MarketVelocity MarketVelocity `json:"market_velocity"`

	ConcessionValue   float64           `json:"concession_value"`
	ConcessionType    string            `json:"concession_type,omitempty"`
	ConcessionUrgency ConcessionUrgency `json:"concession_urgency"`

	RentTrend         RentTrend      `json:"rent_trend"`
	RentChangePercent float64        `json:"rent_change_percent"`
	ConcessionTrend   string         `json:"concession_trend,omitempty"`
	MarketPosition    MarketPosition `json:"market_position"`
	PercentileRank    float64        `json:"percentile_rank"`

	AmenityScore    int `json:"amenity_score"`
	LocationScore   int `json:"location_score"`
	ManagementScore int `json:"management_score"`

	LeaseProbability     float64 `json:"lease_probability"`
	NegotiationPotential int     `json:"negotiation_potential"`
	UrgencyScore         int     `json:"urgency_score"`

	DataFreshness   time.Time `json:"data_freshness"`
	ConfidenceScore float64   `json:"confidence_score"`
}

// MarketStats summarizes the submarket a unit competes in.
type MarketStats struct {
	AverageRent        float64 `json:"average_rent"`
	MedianDaysOnMarket float64 `json:"median_days_on_market"`
	ActiveListings     int     `json:"active_listings"`
	AverageConcession  float64 `json:"average_concession"`
}

// MarketContext is optional input to scoring. A nil *MarketContext and a
// context with nil MarketStats are treated the same.
type MarketContext struct {
	Submarket   string       `json:"submarket,omitempty"`
	MarketStats *MarketStats `json:"market_stats,omitempty"`
}

type UrgencyLevel string

const (
	UrgencyImmediate UrgencyLevel = "immediate"
	UrgencySoon      UrgencyLevel = "soon"
	UrgencyModerate  UrgencyLevel = "moderate"
	UrgencyLow       UrgencyLevel = "low"
)

type Strategy string

const (
	StrategyAggressiveReduction Strategy = "aggressive_reduction"
	StrategyModerateReduction   Strategy = "moderate_reduction"
	StrategyHold                Strategy = "hold"
	StrategyIncrease            Strategy = "increase"
)

type MarketTiming string

const (
	TimingOptimal MarketTiming = "optimal"
	TimingGood    MarketTiming = "good"
	TimingFair    MarketTiming = "fair"
	TimingPoor    MarketTiming = "poor"
)

// RevenueImpact compares twelve-month revenue at the current and suggested rent.
type RevenueImpact struct {
	CurrentAnnualRevenue   float64 `json:"current_annual_revenue"`
	SuggestedAnnualRevenue float64 `json:"suggested_annual_revenue"`
	TotalImpact            float64 `json:"total_impact"`
	MonthsVacantCurrent    float64 `json:"months_vacant_current"`
	MonthsVacantSuggested  float64 `json:"months_vacant_suggested"`
	BreakEvenDays          int     `json:"break_even_days"`
}

// LeaseTimeline projects how quickly the unit leases under each price.
type LeaseTimeline struct {
	CurrentTrajectoryDays   int               `json:"current_trajectory_days"`
	SuggestedTrajectoryDays int               `json:"suggested_trajectory_days"`
	AccelerationFactor      float64           `json:"acceleration_factor"`
	ProbabilityByWeek       WeeklyProbability `json:"probability_by_week"`
}

type WeeklyProbability struct {
	Week1 float64 `json:"week1"`
	Week2 float64 `json:"week2"`
	Week4 float64 `json:"week4"`
	Week8 float64 `json:"week8"`
}

// PricingRecommendation is recomputed on every evaluation and never mutated.
type PricingRecommendation struct {
	UnitID            string        `json:"unit_id"`
	CurrentRent       float64       `json:"current_rent"`
	SuggestedRent     float64       `json:"suggested_rent"`
	AdjustmentAmount  float64       `json:"adjustment_amount"`
	AdjustmentPercent float64       `json:"adjustment_percent"`
	Confidence        float64       `json:"confidence"`
	UrgencyLevel      UrgencyLevel  `json:"urgency_level"`
	Strategy          Strategy      `json:"strategy"`
	Reasoning         []string      `json:"reasoning"`
	ExpectedLeaseDays int           `json:"expected_lease_days"`
	RevenueImpact     RevenueImpact `json:"revenue_impact"`
	MarketTiming      MarketTiming  `json:"market_timing"`
	LeaseTimeline     LeaseTimeline `json:"lease_timeline"`
}

// ── Automation ──────────────────────────────────────────────────────────────

type ConditionType string

const (
	ConditionDaysOnMarket     ConditionType = "days_on_market"
	ConditionConfidenceScore  ConditionType = "confidence_score"
	ConditionMarketPosition   ConditionType = "market_position"
	ConditionPriceChange      ConditionType = "price_change"
	ConditionCompetitorAction ConditionType = "competitor_action"
	ConditionSeasonalFactor   ConditionType = "seasonal_factor"
)

type Operator string

const (
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpEquals      Operator = "equals"
	OpBetween     Operator = "between"
)

// Threshold is a condition operand that is either a number or a string.
type Threshold struct {
	Number float64
	Text   string
	IsText bool
}

// Num returns a numeric threshold.
func Num(v float64) Threshold { return Threshold{Number: v} }

// Text returns a string threshold.
func Text(s string) Threshold { return Threshold{Text: s, IsText: true} }

// Float reports the numeric value of t. String thresholds are parsed, and
// report false when they do not hold a number.
func (t Threshold) Float() (float64, bool) {
	if !t.IsText {
		return t.Number, true
	}
	v, err := strconv.ParseFloat(t.Text, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (t Threshold) String() string {
	if t.IsText {
		return t.Text
	}
	return strconv.FormatFloat(t.Number, 'f', -1, 64)
}

func (t Threshold) MarshalJSON() ([]byte, error) {
	if t.IsText {
		return json.Marshal(t.Text)
	}
	return json.Marshal(t.Number)
}

func (t *Threshold) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*t = Num(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("threshold must be a number or string: %s", b)
	}
	*t = Text(s)
	return nil
}

type AutomationCondition struct {
	Type     ConditionType `json:"type"`
	Operator Operator      `json:"operator"`
	Value    Threshold     `json:"value"`
	Value2   *Threshold    `json:"value2,omitempty"`
}

type ActionType string

const (
	ActionAdjustPrice      ActionType = "adjust_price"
	ActionSendNotification ActionType = "send_notification"
	ActionScheduleReview   ActionType = "schedule_review"
)

type AutomationAction struct {
	Type       ActionType     `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// AutomationRule is an operator-defined policy of ANDed conditions and the
// actions to take when all of them hold.
type AutomationRule struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"`
	Description          string                `json:"description"`
	IsActive             bool                  `json:"is_active"`
	Conditions           []AutomationCondition `json:"conditions"`
	Actions              []AutomationAction    `json:"actions"`
	RiskLevel            RiskLevel             `json:"risk_level"`
	MaxAdjustmentPercent float64               `json:"max_adjustment_percent"`
	RequiresApproval     bool                  `json:"requires_approval"`
	CreatedBy            string                `json:"created_by"`
	CreatedAt            time.Time             `json:"created_at"`
	TriggerCount         int                   `json:"trigger_count"`
	LastTriggered        *time.Time            `json:"last_triggered,omitempty"`
}

// HasAction reports whether the rule carries an action of type t.
func (r AutomationRule) HasAction(t ActionType) bool {
	for _, a := range r.Actions {
		if a.Type == t {
			return true
		}
	}
	return false
}

type ActionStatus string

const (
	StatusPending  ActionStatus = "pending"
	StatusApproved ActionStatus = "approved"
	StatusRejected ActionStatus = "rejected"
	StatusExecuted ActionStatus = "executed"
	StatusExpired  ActionStatus = "expired"
)

// PendingAction is one rule's proposed price change. Value, confidence and
// risk are frozen at creation.
type PendingAction struct {
	ID               string             `json:"id"`
	UnitID           string             `json:"unit_id"`
	RuleID           string             `json:"rule_id"`
	RuleName         string             `json:"rule_name"`
	Action           AutomationAction   `json:"action"`
	FollowUps        []AutomationAction `json:"follow_ups,omitempty"`
	RecommendedValue float64            `json:"recommended_value"`
	CurrentValue     float64            `json:"current_value"`
	Confidence       float64            `json:"confidence"`
	RiskLevel        RiskLevel          `json:"risk_level"`
	Reasoning        string             `json:"reasoning"`
	CreatedAt        time.Time          `json:"created_at"`
	ExpiresAt        time.Time          `json:"expires_at"`
	Status           ActionStatus       `json:"status"`
	ApprovedBy       string             `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time         `json:"approved_at,omitempty"`
	RejectedBy       string             `json:"rejected_by,omitempty"`
	RejectedAt       *time.Time         `json:"rejected_at,omitempty"`
	ExecutedAt       *time.Time         `json:"executed_at,omitempty"`
}

// BusinessHours is the configured operating window in a timezone. It is
// stored and validated with the settings; auto-approval does not consult it.
type BusinessHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

type AutomationSettings struct {
	IsEnabled            bool          `json:"is_enabled"`
	MaxDailyActions      int           `json:"max_daily_actions"`
	MaxAdjustmentPercent float64       `json:"max_adjustment_percent"`
	RequireApprovalAbove float64       `json:"require_approval_above"`
	AutoApprovalRules    []string      `json:"auto_approval_rules"`
	BusinessHours        BusinessHours `json:"business_hours"`
	BlackoutDates        []string      `json:"blackout_dates"`
}

// AllowsAutoApproval reports whether ruleID is on the auto-approval list.
func (s AutomationSettings) AllowsAutoApproval(ruleID string) bool {
	for _, id := range s.AutoApprovalRules {
		if id == ruleID {
			return true
		}
	}
	return false
}

type TriggeredBy string

const (
	TriggeredBySystem   TriggeredBy = "system"
	TriggeredByUser     TriggeredBy = "user"
	TriggeredBySchedule TriggeredBy = "schedule"
)

// AutomationLog is an append-only record of one executed action.
type AutomationLog struct {
	ID          string      `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	UnitID      string      `json:"unit_id"`
	RuleID      string      `json:"rule_id"`
	ActionID    string      `json:"action_id"`
	Action      string      `json:"action"`
	OldValue    float64     `json:"old_value"`
	NewValue    float64     `json:"new_value"`
	Success     bool        `json:"success"`
	Error       string      `json:"error,omitempty"`
	TriggeredBy TriggeredBy `json:"triggered_by"`
}

// AutomationStats is the dashboard roll-up of automation activity.
type AutomationStats struct {
	TotalRules     int     `json:"total_rules"`
	ActiveRules    int     `json:"active_rules"`
	PendingActions int     `json:"pending_actions"`
	ExecutedToday  int     `json:"executed_today"`
	SuccessRate    float64 `json:"success_rate"`
}

// CompetitorContext carries recent competitor price moves around a unit.
type CompetitorContext struct {
	MaxPriceChange float64  `json:"max_price_change"`
	Competitors    []string `json:"competitors,omitempty"`
}

// SeasonalContext carries the seasonal pricing signal for the evaluation date.
type SeasonalContext struct {
	AdjustmentPercent float64 `json:"adjustment_percent"`
	Season            string  `json:"season,omitempty"`
}

// ── Renter side ─────────────────────────────────────────────────────────────

type DealLevel string

const (
	DealGreat     DealLevel = "great_deal"
	DealGood      DealLevel = "good_deal"
	DealFair      DealLevel = "fair_deal"
	DealHotMarket DealLevel = "hot_market"
)

type Potential string

const (
	PotentialHigh   Potential = "high"
	PotentialMedium Potential = "medium"
	PotentialLow    Potential = "low"
)

type Desperation string

const (
	DesperationDesperate Desperation = "desperate"
	DesperationMotivated Desperation = "motivated"
	DesperationStandard  Desperation = "standard"
	DesperationStubborn  Desperation = "stubborn"
)

type TimingAction string

const (
	TimingWait             TimingAction = "wait"
	TimingNegotiateNow     TimingAction = "negotiate_now"
	TimingApplyImmediately TimingAction = "apply_immediately"
)

type RenterPosition string

const (
	RenterAdvantage   RenterPosition = "renter_advantage"
	RenterBalanced    RenterPosition = "balanced"
	LandlordAdvantage RenterPosition = "landlord_advantage"
)

type SavingsRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type PotentialSavings struct {
	Monthly            SavingsRange `json:"monthly"`
	AnnualSavings      float64      `json:"annual_savings"`
	OneTimeConcessions float64      `json:"one_time_concessions"`
}

type TimingAdvice struct {
	Action       TimingAction `json:"action"`
	Reasoning    string       `json:"reasoning"`
	ActionWindow string       `json:"action_window"`
}

// RenterDealIntelligence reinterprets a snapshot from the renter's side.
type RenterDealIntelligence struct {
	UnitID               string           `json:"unit_id"`
	DealScore            int              `json:"deal_score"`
	DealLevel            DealLevel        `json:"deal_level"`
	NegotiationPotential Potential        `json:"negotiation_potential"`
	LandlordDesperation  Desperation      `json:"landlord_desperation"`
	PotentialSavings     PotentialSavings `json:"potential_savings"`
	TimingAdvice         TimingAdvice     `json:"timing_advice"`
	NegotiationTips      []string         `json:"negotiation_tips"`
	MarketPosition       RenterPosition   `json:"market_position"`
	CompetitionLevel     Potential        `json:"competition_level"`
	VacancyWeakness      int              `json:"vacancy_weakness"`
}

type MarketTrend string

const (
	TrendRenterFriendly MarketTrend = "renter_friendly"
	TrendBalanced       MarketTrend = "balanced"
	TrendCompetitive    MarketTrend = "competitive"
)

// RenterMarketSummary aggregates deal intelligence across many units.
type RenterMarketSummary struct {
	TotalUnits       int               `json:"total_units"`
	GreatDeals       int               `json:"great_deals"`
	NegotiableUnits  int               `json:"negotiable_units"`
	AverageSavings   float64           `json:"average_savings"`
	BestDealUnit     string            `json:"best_deal_unit"`
	MarketTrend      MarketTrend       `json:"market_trend"`
	DealDistribution map[DealLevel]int `json:"deal_distribution"`
}
