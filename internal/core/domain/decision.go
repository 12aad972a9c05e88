package domain

import "fmt"

type DecisionSource string

const (
	SourceWhitelist        DecisionSource = "WHITELIST"
	SourceBlocklist        DecisionSource = "BLOCKLIST"
	SourcePrefix           DecisionSource = "PREFIX"
	SourceHidden           DecisionSource = "HIDDEN"
	SourceAdvancedBlocking DecisionSource = "ADVANCED_BLOCKING"
	SourceSeedDB           DecisionSource = "SEED_DB"
	SourceRemote           DecisionSource = "REMOTE"
	SourceBehavioral       DecisionSource = "BEHAVIORAL"
	SourceDefault          DecisionSource = "DEFAULT"
	SourceFailOpen         DecisionSource = "FAIL_OPEN"
)

// CallDecision is the verdict for one incoming call. The set of cases is
// closed: Allow, Silence, Reject and Flag.
type CallDecision interface {
	DecisionSource() DecisionSource
	callDecision()
}

type Allow struct {
	Source DecisionSource
}

type Silence struct {
	Score    float64
	Category string
	Source   DecisionSource
}

type Reject struct {
	Source DecisionSource
}

type Flag struct {
	Score    float64
	Category string
	Source   DecisionSource
}

func (d Allow) DecisionSource() DecisionSource   { return d.Source }
func (d Silence) DecisionSource() DecisionSource { return d.Source }
func (d Reject) DecisionSource() DecisionSource  { return d.Source }
func (d Flag) DecisionSource() DecisionSource    { return d.Source }

func (Allow) callDecision()   {}
func (Silence) callDecision() {}
func (Reject) callDecision()  {}
func (Flag) callDecision()    {}

// OutcomeOf maps a decision onto the history outcome it is recorded as.
func OutcomeOf(d CallDecision) Outcome {
	switch d.(type) {
	case Allow:
		return OutcomeAllowed
	case Silence:
		return OutcomeSilenced
	case Reject:
		return OutcomeRejected
	case Flag:
		return OutcomeFlagged
	default:
		panic(fmt.Sprintf("unknown call decision %T", d))
	}
}

// ScoreOf returns the confidence score and category carried by d, if any.
func ScoreOf(d CallDecision) (float64, string) {
	switch v := d.(type) {
	case Silence:
		return v.Score, v.Category
	case Flag:
		return v.Score, v.Category
	case Allow, Reject:
		return 0, ""
	default:
		panic(fmt.Sprintf("unknown call decision %T", d))
	}
}
