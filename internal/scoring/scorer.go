package scoring

const (
	ActivityPoints = 2
	RepeatPoints   = 3
	LinkPoints     = 2
	RaidPoints     = 1
)

// Signals are the inputs of one message evaluation. Counts include the
// message being scored.
type Signals struct {
	ActivityCount int
	RepeatCount   int
	HasURL        bool
	RaidActive    bool
}

type Rules struct {
	// ActivityLimit is exclusive: the rule fires above it.
	ActivityLimit   int
	RepeatThreshold int
	FlagThreshold   int
}

func DefaultRules() Rules {
	return Rules{ActivityLimit: 6, RepeatThreshold: 3, FlagThreshold: 4}
}

type Scorer struct {
	rules Rules
}

func New(rules Rules) Scorer {
	defaults := DefaultRules()
	if rules.ActivityLimit <= 0 {
		rules.ActivityLimit = defaults.ActivityLimit
	}
	if rules.RepeatThreshold <= 0 {
		rules.RepeatThreshold = defaults.RepeatThreshold
	}
	if rules.FlagThreshold <= 0 {
		rules.FlagThreshold = defaults.FlagThreshold
	}
	return Scorer{rules: rules}
}

// Score sums the independent rule increments; the result is in [0, 8].
func (s Scorer) Score(signals Signals) int {
	score := 0
	if signals.ActivityCount > s.rules.ActivityLimit {
		score += ActivityPoints
	}
	if signals.RepeatCount >= s.rules.RepeatThreshold {
		score += RepeatPoints
	}
	if signals.HasURL {
		score += LinkPoints
	}
	if signals.RaidActive {
		score += RaidPoints
	}
	return score
}

func (s Scorer) Flagged(score int) bool {
	return score >= s.rules.FlagThreshold
}
