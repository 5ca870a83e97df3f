package domain

// Ballot is a single participant's vote. Choice indexes an option in the
// current proposal; Skip is a reserved value asking for a fresh proposal.
type Ballot struct {
	Skip   bool
	Choice int
}

// VoteOutcomeKind tags the result of one voting round.
type VoteOutcomeKind int

const (
	// VoteChosen means a proposal option won by plurality.
	VoteChosen VoteOutcomeKind = iota
	// VoteSkip means the skip/regenerate option won.
	VoteSkip
	// VoteNoBallots means the window closed with zero votes cast. This is a
	// first-class outcome, not an error; retry-or-abort policy is the caller's.
	VoteNoBallots
	// VoteAborted means the vote was cancelled before it could resolve.
	VoteAborted
)

// VoteOutcome is the resolution of one voting round.
type VoteOutcome struct {
	Kind VoteOutcomeKind

	// Choice is the winning option index when Kind is VoteChosen.
	Choice int
	// Count is how many of the cast ballots backed the winner.
	Count int
	// Cast is the number of distinct participants that voted.
	Cast int
	// Overridden is set when the outcome was decided by a sole overriding actor.
	Overridden bool
}
