package trade

import (
	"fmt"
	"math"

	"github.com/jacklawrencecmg/TradeAnalyzer-sub000/internal/domain"
)

// SeasonPhase shifts pick values: rookie hype inflates picks before the
// draft, certainty deflates them after.
type SeasonPhase string

const (
	PhaseRegular   SeasonPhase = ""
	PhasePreHype   SeasonPhase = "prehype"
	PhasePostDraft SeasonPhase = "postdraft"
)

// Base pick curve for a current-year pick, by round and slot.
var pickCurve = map[int]map[domain.PickSlot]float64{
	1: {domain.PickSlotEarly: 3500, domain.PickSlotMid: 3000, domain.PickSlotLate: 2500},
	2: {domain.PickSlotEarly: 1500, domain.PickSlotMid: 1200, domain.PickSlotLate: 1000},
	3: {domain.PickSlotEarly: 500, domain.PickSlotMid: 500, domain.PickSlotLate: 500},
	4: {domain.PickSlotEarly: 200, domain.PickSlotMid: 200, domain.PickSlotLate: 200},
}

// lateRoundPickValue prices rounds past the curve.
const lateRoundPickValue = 100

// PickValue prices a draft pick: base curve by round and slot, a
// per-year discount for future picks, and the season-phase multiplier.
// An empty slot is priced at the round's mid tier.
func PickValue(pick domain.DraftPick, phase SeasonPhase, params map[string]float64, currentYear int) (float64, error) {
	if pick.Round < 1 {
		return 0, fmt.Errorf("%w: pick round %d", ErrInvalidProposal, pick.Round)
	}
	if pick.Year < currentYear {
		return 0, fmt.Errorf("%w: pick year %d already drafted", ErrInvalidProposal, pick.Year)
	}
	slot := pick.Slot
	if slot == "" {
		slot = domain.PickSlotMid
	}

	var base float64
	if bySlot, ok := pickCurve[pick.Round]; ok {
		base, ok = bySlot[slot]
		if !ok {
			return 0, fmt.Errorf("%w: pick slot %q", ErrInvalidProposal, pick.Slot)
		}
	} else {
		base = lateRoundPickValue
	}

	// Future picks decay per year out: uncertainty about slot and class
	// quality compounds.
	discount := paramOr(params, "pick_future_year_discount", 0.10)
	yearsOut := pick.Year - currentYear
	value := base * math.Pow(1-discount, float64(yearsOut))

	switch phase {
	case PhasePreHype:
		value *= paramOr(params, "pick_phase_prehype", 1.10)
	case PhasePostDraft:
		value *= paramOr(params, "pick_phase_postdraft", 0.95)
	case PhaseRegular:
	default:
		return 0, fmt.Errorf("%w: season phase %q", ErrInvalidProposal, phase)
	}

	return math.Round(value*10) / 10, nil
}
