// Package recommend derives MAINTAIN, CLOSE or ROLL advice for held positions.
// Long calls follow LEAPS rules; short calls and short puts have their own
// rule sets. Rules are checked from most to least urgent and the first match
// wins.
package recommend

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
)

// Thresholds shared by the rule sets.
const (
	ProfitTargetPct     = 0.60
	IVCollapsePoints    = 30.0
	EarningsCloseDays   = 7
	ShortMinDTE         = 21
	NearStrikePct       = 0.03
	FarBelowStrikePct   = 0.05
	FarAboveStrikePct   = 0.10
	ShortMinDelta       = 0.20
	ShortMaxDelta       = 0.30
	ShortMaintainMinDTE = 30
	ShortMaintainMaxDTE = 45

	LEAPSCloseDTE      = 90
	LEAPSRollMaxDTE    = 180
	LEAPSCloseDelta    = 0.60
	LEAPSRollDelta     = 0.65
	LEAPSTargetDelta   = 0.70
	LEAPSHighIVPercent = 80.0
)

// Market is what the rules know about the underlying and the contract.
type Market struct {
	Indicators *models.StockIndicatorSet
	Chain      *models.OptionsChain
	// Premium is the current per-share price of the contract; 0 means unknown.
	Premium float64
	// LEAPS is the held long call a short call is written against, if any.
	LEAPS *models.Position
}

// Service is the PositionRecommendationService. It performs no I/O.
type Service struct {
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(logger logrus.FieldLogger) *Service {
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}
	return &Service{logger: logger, now: time.Now}
}

// WithClock overrides the clock used for DTE.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// snapshot gathers the derived facts every rule set reads.
type snapshot struct {
	pos      *models.Position
	mkt      Market
	now      time.Time
	dte      int
	price    float64 // underlying
	premium  float64 // contract, per share
	delta    float64
	hasDelta bool
	profit   float64
	hasProf  bool
}

func (s *Service) snapshot(pos *models.Position, mkt Market) snapshot {
	now := s.now()
	snap := snapshot{pos: pos, mkt: mkt, now: now, dte: pos.CalculateDTE(now), premium: mkt.Premium}
	if mkt.Indicators != nil {
		snap.price = mkt.Indicators.CurrentPrice
	}
	if c, ok := mkt.Chain.Find(pos.OptionType, pos.Strike, pos.Expiration); ok {
		snap.delta, snap.hasDelta = c.AbsDelta(), c.Greeks.Delta != 0
		if snap.premium <= 0 {
			snap.premium = c.Premium()
		}
	}
	if snap.premium > 0 && pos.EntryPrice > 0 {
		snap.profit, snap.hasProf = pos.ProfitCaptured(snap.premium), true
	}
	return snap
}

// ivCollapsed reports whether IV percentile fell more than IVCollapsePoints since entry.
func (sn snapshot) ivCollapsed() (float64, bool) {
	if sn.pos.EntryIVPercentile == nil || sn.mkt.Indicators == nil {
		return 0, false
	}
	drop := *sn.pos.EntryIVPercentile - sn.mkt.Indicators.IVPercentile
	return drop, drop > IVCollapsePoints
}

func (sn snapshot) earningsSoon() bool {
	return sn.mkt.Indicators.EarningsWithin(EarningsCloseDays)
}

// moneyness returns (price - strike) / strike.
func (sn snapshot) moneyness() (float64, bool) {
	if sn.price <= 0 || sn.pos.Strike <= 0 {
		return 0, false
	}
	return (sn.price - sn.pos.Strike) / sn.pos.Strike, true
}

func rec(pos *models.Position, action models.Action, priority int, reasons ...string) models.PositionRecommendation {
	return models.PositionRecommendation{
		PositionID: pos.ID,
		Action:     action,
		Priority:   priority,
		Reasoning:  reasons,
	}
}

// Recommend applies the rule set matching the position's shape.
func (s *Service) Recommend(pos *models.Position, mkt Market) models.PositionRecommendation {
	if pos == nil {
		return models.PositionRecommendation{Action: models.ActionMaintain, Priority: models.PriorityLow, Reasoning: []string{}}
	}
	var r models.PositionRecommendation
	switch {
	case pos.IsLongCall():
		r = s.leaps(s.snapshot(pos, mkt))
	case pos.IsShortCall():
		r = s.shortCall(s.snapshot(pos, mkt))
	case pos.IsShortPut():
		r = s.shortPut(s.snapshot(pos, mkt))
	case pos.Type == models.PositionStock:
		r = rec(pos, models.ActionMaintain, models.PriorityLow, "Stock position: no automated rules")
	default:
		r = rec(pos, models.ActionMaintain, models.PriorityLow, "No rules for this position type")
	}
	s.logger.WithFields(logrus.Fields{
		"position_id": pos.ID,
		"ticker":      pos.Ticker,
		"action":      r.Action,
		"priority":    r.Priority,
	}).Debug("position recommendation")
	return r
}

// ============ LEAPS (long call) ============

func (s *Service) leaps(sn snapshot) models.PositionRecommendation {
	pos := sn.pos
	if pos.ThesisBroken {
		return rec(pos, models.ActionClose, models.PriorityUrgent, "Thesis flagged as broken")
	}
	if sn.dte <= LEAPSCloseDTE {
		return rec(pos, models.ActionClose, models.PriorityMedium,
			fmt.Sprintf("%d DTE: at or below %d, theta decay accelerating", sn.dte, LEAPSCloseDTE))
	}
	if sn.hasDelta && sn.delta < LEAPSCloseDelta {
		return rec(pos, models.ActionClose, models.PriorityMedium,
			fmt.Sprintf("Delta %.2f below %.2f", sn.delta, LEAPSCloseDelta))
	}
	if drop, ok := sn.ivCollapsed(); ok {
		return rec(pos, models.ActionClose, models.PriorityMedium,
			fmt.Sprintf("IV percentile down %.0f points since entry", drop))
	}

	var why []string
	if sn.dte <= LEAPSRollMaxDTE {
		why = append(why, fmt.Sprintf("%d DTE inside the %d-%d roll window", sn.dte, LEAPSCloseDTE+1, LEAPSRollMaxDTE))
	}
	if sn.hasDelta && sn.delta < LEAPSRollDelta {
		why = append(why, fmt.Sprintf("Delta %.2f below %.2f", sn.delta, LEAPSRollDelta))
	}
	if len(why) > 0 {
		r := rec(pos, models.ActionRoll, models.PriorityMedium, why...)
		s.attachRoll(&r, sn, models.RollLEAPSOut)
		return r
	}

	r := rec(pos, models.ActionMaintain, models.PriorityLow, fmt.Sprintf("%d DTE", sn.dte))
	if sn.hasDelta {
		if sn.delta >= LEAPSTargetDelta {
			r.Reasoning = append(r.Reasoning, fmt.Sprintf("Delta %.2f at or above %.2f", sn.delta, LEAPSTargetDelta))
		} else {
			r.Reasoning = append(r.Reasoning, fmt.Sprintf("Delta %.2f below the %.2f target, watch for a roll", sn.delta, LEAPSTargetDelta))
		}
	}
	if ind := sn.mkt.Indicators; ind != nil && ind.IVPercentile > LEAPSHighIVPercent {
		r.Reasoning = append(r.Reasoning, fmt.Sprintf("IV percentile %.0f above %.0f, consider taking profits", ind.IVPercentile, LEAPSHighIVPercent))
	}
	return r
}

// ============ Short call ============

func (s *Service) shortCall(sn snapshot) models.PositionRecommendation {
	pos := sn.pos
	if l := sn.mkt.LEAPS; l != nil && pos.Strike <= l.Strike {
		return rec(pos, models.ActionClose, models.PriorityUrgent,
			fmt.Sprintf("Invalid PMCC: short strike $%.2f at or below LEAPS strike $%.2f", pos.Strike, l.Strike))
	}
	if sn.earningsSoon() {
		return rec(pos, models.ActionClose, models.PriorityUrgent,
			fmt.Sprintf("Earnings in %d days", *sn.mkt.Indicators.DaysToEarnings))
	}
	if sn.hasProf && sn.profit >= ProfitTargetPct {
		return rec(pos, models.ActionClose, models.PriorityMedium,
			fmt.Sprintf("%.0f%% of max profit captured", sn.profit*100))
	}
	if sn.dte < ShortMinDTE {
		return rec(pos, models.ActionClose, models.PriorityMedium,
			fmt.Sprintf("%d DTE: below %d", sn.dte, ShortMinDTE))
	}
	if drop, ok := sn.ivCollapsed(); ok {
		return rec(pos, models.ActionClose, models.PriorityMedium,
			fmt.Sprintf("IV percentile down %.0f points since entry", drop))
	}

	if m, ok := sn.moneyness(); ok {
		var rollType models.RollType
		var why string
		switch {
		case m > 0:
			rollType, why = models.RollUpOut, fmt.Sprintf("Price $%.2f broke above strike $%.2f", sn.price, pos.Strike)
		case -m <= NearStrikePct:
			rollType, why = models.RollOut, fmt.Sprintf("Price within %.1f%% of strike", -m*100)
		case -m > FarBelowStrikePct && (!sn.hasDelta || sn.delta < ShortMinDelta):
			rollType, why = models.RollDownOut, fmt.Sprintf("Price %.1f%% below strike, little premium left", -m*100)
		}
		if rollType != "" {
			r := rec(pos, models.ActionRoll, models.PriorityMedium, why)
			s.attachRoll(&r, sn, rollType)
			return r
		}
	}
	return s.maintainShort(sn)
}

// ============ Short put ============

func (s *Service) shortPut(sn snapshot) models.PositionRecommendation {
	pos := sn.pos
	if sn.earningsSoon() {
		return rec(pos, models.ActionClose, models.PriorityUrgent,
			fmt.Sprintf("Earnings in %d days", *sn.mkt.Indicators.DaysToEarnings))
	}
	if sn.hasProf && sn.profit >= ProfitTargetPct {
		return rec(pos, models.ActionClose, models.PriorityMedium,
			fmt.Sprintf("%.0f%% of max profit captured", sn.profit*100))
	}
	if drop, ok := sn.ivCollapsed(); ok {
		return rec(pos, models.ActionClose, models.PriorityMedium,
			fmt.Sprintf("IV percentile down %.0f points since entry", drop))
	}

	if m, ok := sn.moneyness(); ok {
		var rollType models.RollType
		var why string
		switch {
		case m < -NearStrikePct:
			rollType, why = models.RollDownOut, fmt.Sprintf("Price $%.2f dropped %.1f%% through strike $%.2f", sn.price, -m*100, pos.Strike)
		case math.Abs(m) <= NearStrikePct:
			rollType, why = models.RollOut, fmt.Sprintf("Price within %.1f%% of strike", math.Abs(m)*100)
		case m > FarAboveStrikePct && (!sn.hasDelta || sn.delta < ShortMinDelta):
			rollType, why = models.RollDown, fmt.Sprintf("Price %.1f%% above strike, little premium left", m*100)
		}
		if rollType != "" {
			r := rec(pos, models.ActionRoll, models.PriorityMedium, why)
			s.attachRoll(&r, sn, rollType)
			return r
		}
	}
	r := s.maintainShort(sn)
	r.Reasoning = append(r.Reasoning, fmt.Sprintf("Assignment would buy shares at $%.2f", pos.Strike))
	return r
}

func (s *Service) maintainShort(sn snapshot) models.PositionRecommendation {
	r := rec(sn.pos, models.ActionMaintain, models.PriorityLow)
	if sn.dte >= ShortMaintainMinDTE && sn.dte <= ShortMaintainMaxDTE {
		r.Reasoning = append(r.Reasoning, fmt.Sprintf("%d DTE in the %d-%d sweet spot", sn.dte, ShortMaintainMinDTE, ShortMaintainMaxDTE))
	} else {
		r.Reasoning = append(r.Reasoning, fmt.Sprintf("%d DTE", sn.dte))
	}
	if sn.hasDelta {
		r.Reasoning = append(r.Reasoning, fmt.Sprintf("Delta %.2f", sn.delta))
	}
	if sn.hasProf {
		r.Reasoning = append(r.Reasoning, fmt.Sprintf("%.0f%% of max profit captured", sn.profit*100))
	}
	return r
}
