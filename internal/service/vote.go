package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"caps-bot/internal/domain"

	"github.com/rs/zerolog"
)

// VoteCoordinator collects one ballot per participant for a single proposal
// and resolves a plurality winner. Each coordinator is owned by exactly one
// voting round; a fresh one is created for every proposal.
type VoteCoordinator struct {
	mu           sync.Mutex
	participants map[string]struct{}
	optionCount  int
	ballots      map[string]domain.Ballot
	// castOrder records participants by first cast, preserving the
	// deterministic first-to-plurality tie-break.
	castOrder []string
	soleVoter string
	resolved  bool
	wake      chan struct{}
	logger    zerolog.Logger
}

// NewVoteCoordinator builds a coordinator for one proposal with optionCount
// selectable options plus the reserved skip ballot.
func NewVoteCoordinator(participants []string, optionCount int, logger zerolog.Logger) *VoteCoordinator {
	set := make(map[string]struct{}, len(participants))
	for _, id := range participants {
		set[id] = struct{}{}
	}
	return &VoteCoordinator{
		participants: set,
		optionCount:  optionCount,
		ballots:      make(map[string]domain.Ballot, len(set)),
		wake:         make(chan struct{}, 1),
		logger:       logger.With().Str("component", "vote").Logger(),
	}
}

// Cast records a participant's ballot. A later ballot from the same
// participant replaces the earlier one. After an override only the sole
// decider may cast, and their ballot resolves the vote immediately.
// Skip ballots are normalized so every skip tallies as the same option, and
// a choice outside the proposal is rejected outright.
func (v *VoteCoordinator) Cast(actorID string, ballot domain.Ballot) error {
	if ballot.Skip {
		ballot.Choice = 0
	} else if ballot.Choice < 0 || ballot.Choice >= v.optionCount {
		return fmt.Errorf("%w: choice %d of %d options", ErrInvalidChoice, ballot.Choice, v.optionCount)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.resolved {
		return ErrVoteClosed
	}
	if v.soleVoter != "" && actorID != v.soleVoter {
		return ErrVoteOverridden
	}
	if _, ok := v.participants[actorID]; !ok && v.soleVoter != actorID {
		return ErrNotParticipant
	}

	if _, voted := v.ballots[actorID]; !voted {
		v.castOrder = append(v.castOrder, actorID)
	}
	v.ballots[actorID] = ballot

	v.logger.Debug().Str("actor_id", actorID).Bool("skip", ballot.Skip).Int("choice", ballot.Choice).
		Int("cast", len(v.ballots)).Msg("ballot cast")

	if v.soleVoter == actorID || len(v.ballots) == len(v.participants) {
		v.signalLocked()
	}
	return nil
}

// Override clears all ballots and makes actorID the sole decider. The
// caller is responsible for authorization.
func (v *VoteCoordinator) Override(actorID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.resolved {
		return ErrVoteClosed
	}

	v.ballots = make(map[string]domain.Ballot, 1)
	v.castOrder = nil
	v.soleVoter = actorID

	v.logger.Info().Str("actor_id", actorID).Msg("vote overridden, awaiting sole decider ballot")
	return nil
}

// Run blocks until every expected participant has voted, the window closes,
// or ctx is cancelled, and returns the resolved outcome.
func (v *VoteCoordinator) Run(ctx context.Context, window time.Duration) domain.VoteOutcome {
	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case <-v.wake:
			if outcome, done := v.tryResolve(false); done {
				return outcome
			}
		case <-timer.C:
			outcome, _ := v.tryResolve(true)
			return outcome
		case <-ctx.Done():
			v.mu.Lock()
			v.resolved = true
			v.mu.Unlock()
			return domain.VoteOutcome{Kind: domain.VoteAborted}
		}
	}
}

func (v *VoteCoordinator) signalLocked() {
	select {
	case v.wake <- struct{}{}:
	default:
	}
}

// tryResolve finalizes the vote if it is decidable. With expired set the
// vote resolves no matter how many ballots came in.
func (v *VoteCoordinator) tryResolve(expired bool) (domain.VoteOutcome, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	complete := len(v.ballots) > 0 && (v.soleVoter != "" || len(v.ballots) == len(v.participants))
	if !expired && !complete {
		return domain.VoteOutcome{}, false
	}

	v.resolved = true

	if len(v.ballots) == 0 {
		v.logger.Info().Msg("vote window closed with no ballots")
		return domain.VoteOutcome{Kind: domain.VoteNoBallots}, true
	}

	winner, count := v.pluralityLocked()

	outcome := domain.VoteOutcome{
		Choice:     winner.Choice,
		Count:      count,
		Cast:       len(v.ballots),
		Overridden: v.soleVoter != "",
	}
	if winner.Skip {
		outcome.Kind = domain.VoteSkip
	} else {
		outcome.Kind = domain.VoteChosen
	}

	v.logger.Info().Int("choice", outcome.Choice).Bool("skip", winner.Skip).
		Int("count", count).Int("cast", outcome.Cast).Bool("overridden", outcome.Overridden).
		Msg("vote resolved")
	return outcome, true
}

// pluralityLocked picks the winning ballot: highest final count, ties broken
// by whichever option reached that count first in submission order.
func (v *VoteCoordinator) pluralityLocked() (domain.Ballot, int) {
	counts := make(map[domain.Ballot]int, len(v.ballots))
	best := 0
	for _, ballot := range v.ballots {
		counts[ballot]++
		if counts[ballot] > best {
			best = counts[ballot]
		}
	}

	running := make(map[domain.Ballot]int, len(counts))
	for _, actorID := range v.castOrder {
		ballot, ok := v.ballots[actorID]
		if !ok {
			continue
		}
		running[ballot]++
		if running[ballot] == best {
			return ballot, best
		}
	}

	// Unreachable: some ballot must reach the maximum count.
	for ballot, count := range counts {
		if count == best {
			return ballot, count
		}
	}
	return domain.Ballot{}, 0
}
