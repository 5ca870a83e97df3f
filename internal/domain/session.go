package domain

// SessionState is the lifecycle phase of an active session.
type SessionState int

const (
	StateForming SessionState = iota
	StateVotingTeams
	StateRound1
	StateRound2
	StateFinalizing
	StateComplete
	StateAbortedNoVote
	StateAbortedTimeout
	StateAbortedExternal
)

func (s SessionState) String() string {
	switch s {
	case StateForming:
		return "forming"
	case StateVotingTeams:
		return "voting_teams"
	case StateRound1:
		return "round_1"
	case StateRound2:
		return "round_2"
	case StateFinalizing:
		return "finalizing"
	case StateComplete:
		return "complete"
	case StateAbortedNoVote:
		return "aborted_no_vote"
	case StateAbortedTimeout:
		return "aborted_timeout"
	case StateAbortedExternal:
		return "aborted_external"
	}
	return "unknown"
}

// Terminal reports whether the session has finished, successfully or not.
func (s SessionState) Terminal() bool {
	switch s {
	case StateComplete, StateAbortedNoVote, StateAbortedTimeout, StateAbortedExternal:
		return true
	}
	return false
}

// Aborted reports whether the session ended without a finalized match.
func (s SessionState) Aborted() bool {
	return s.Terminal() && s != StateComplete
}

// RoundSignalKind tags messages delivered to a session's round wait.
type RoundSignalKind int

const (
	// RoundScoreSubmitted carries a real score pair from the command layer.
	RoundScoreSubmitted RoundSignalKind = iota
	// RoundAborted is a cooperative cancellation request. It is a distinct
	// message kind so a real 0-0 score can never be mistaken for an abort.
	RoundAborted
)

// RoundSignal is the single message type accepted by a blocked round wait.
type RoundSignal struct {
	Kind   RoundSignalKind
	Score1 int
	Score2 int
}
