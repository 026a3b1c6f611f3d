package recommend

import (
	"math"
	"sort"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
	"github.com/eddiefleurent/finance_dashboard/internal/util"
)

// Roll target windows.
const (
	ShortRollMinDTE   = 30
	ShortRollMaxDTE   = 60
	shortTargetDelta  = 0.25
	LEAPSRollMinDays  = 365
	LEAPSRollMaxDays  = 548
	leapsTargetMinDel = 0.70
	leapsTargetMaxDel = 0.85
)

// attachRoll fills r.Roll with a target contract from the chain, or notes
// that none exists.
func (s *Service) attachRoll(r *models.PositionRecommendation, sn snapshot, rollType models.RollType) {
	target, ok := rollTarget(sn, rollType)
	if !ok {
		r.Reasoning = append(r.Reasoning, "No suitable roll target in the current chain")
		return
	}
	newPremium := target.Premium()
	params := &models.RollParameters{
		NewStrike:     target.Strike,
		NewExpiration: target.Expiration,
		NewDTE:        target.DaysToExpirationAt(sn.now),
		NewPremium:    util.RoundToTick(newPremium, 0.01),
		CloseCost:     util.RoundToTick(sn.premium, 0.01),
		RollType:      rollType,
	}
	if sn.pos.IsShort() {
		params.ExpectedCredit = util.RoundToTick(newPremium-sn.premium, 0.01)
	} else {
		params.ExpectedCredit = util.RoundToTick(sn.premium-newPremium, 0.01)
	}
	r.Roll = params
}

// rollTarget picks the replacement contract for a roll.
func rollTarget(sn snapshot, rollType models.RollType) (models.OptionContract, bool) {
	if sn.mkt.Chain.Len() == 0 {
		return models.OptionContract{}, false
	}
	pos := sn.pos
	var candidates []models.OptionContract
	for _, c := range sn.mkt.Chain.Contracts {
		if c.Type != pos.OptionType || c.Premium() <= 0 || c.Expiration.Before(pos.Expiration.Time) {
			continue
		}
		// Only a plain roll down may stay in the current expiration.
		if rollType != models.RollDown && c.Expiration.Equal(pos.Expiration.Time) {
			continue
		}
		dte := c.DaysToExpirationAt(sn.now)
		if rollType == models.RollLEAPSOut {
			if c.Strike < pos.Strike || dte < sn.dte+LEAPSRollMinDays || dte > sn.dte+LEAPSRollMaxDays {
				continue
			}
			candidates = append(candidates, c)
			continue
		}
		if dte < ShortRollMinDTE || dte > ShortRollMaxDTE {
			continue
		}
		if strikeFits(c.Strike, pos.Strike, rollType) && deltaFits(c, rollType) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return models.OptionContract{}, false
	}

	if rollType == models.RollLEAPSOut {
		// Same strike first, then the nearest higher one; prefer the target delta band.
		sort.SliceStable(candidates, func(i, j int) bool {
			bi, bj := leapsBand(candidates[i]), leapsBand(candidates[j])
			if bi != bj {
				return bi
			}
			if candidates[i].Strike != candidates[j].Strike {
				return candidates[i].Strike < candidates[j].Strike
			}
			return candidates[i].Expiration.Before(candidates[j].Expiration.Time)
		})
		return candidates[0], true
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di := math.Abs(candidates[i].AbsDelta() - shortTargetDelta)
		dj := math.Abs(candidates[j].AbsDelta() - shortTargetDelta)
		if di != dj {
			return di < dj
		}
		return candidates[i].Expiration.Before(candidates[j].Expiration.Time)
	})
	return candidates[0], true
}

func strikeFits(strike, current float64, rollType models.RollType) bool {
	switch rollType {
	case models.RollOut:
		return math.Abs(strike-current) <= 1e-3
	case models.RollDownOut:
		return strike < current
	case models.RollDown:
		// Far out-of-the-money: any other strike back in the delta band.
		return math.Abs(strike-current) > 1e-3
	case models.RollUpOut:
		return strike > current
	default:
		return false
	}
}

// deltaFits keeps new short strikes inside the 0.20-0.30 band; a same-strike
// roll takes whatever delta the strike has.
func deltaFits(c models.OptionContract, rollType models.RollType) bool {
	if rollType == models.RollOut {
		return true
	}
	d := c.AbsDelta()
	return d >= ShortMinDelta && d <= ShortMaxDelta
}

func leapsBand(c models.OptionContract) bool {
	d := c.AbsDelta()
	return d >= leapsTargetMinDel && d <= leapsTargetMaxDel
}
