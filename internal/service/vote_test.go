package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"caps-bot/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func voteParticipants(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("member-%d", i)
	}
	return ids
}

func runVote(t *testing.T, v *VoteCoordinator, window time.Duration) <-chan domain.VoteOutcome {
	t.Helper()
	out := make(chan domain.VoteOutcome, 1)
	go func() {
		out <- v.Run(context.Background(), window)
	}()
	return out
}

func TestVoteResolvesEarlyWhenAllBallotsIn(t *testing.T) {
	participants := voteParticipants(8)
	v := NewVoteCoordinator(participants, 4, zerolog.Nop())
	out := runVote(t, v, time.Minute)

	for _, id := range participants {
		require.NoError(t, v.Cast(id, domain.Ballot{Choice: 2}))
	}

	select {
	case outcome := <-out:
		require.Equal(t, domain.VoteChosen, outcome.Kind)
		require.Equal(t, 2, outcome.Choice)
		require.Equal(t, 8, outcome.Count)
		require.Equal(t, 8, outcome.Cast)
		require.False(t, outcome.Overridden)
	case <-time.After(time.Second):
		t.Fatal("vote did not resolve after all ballots were cast")
	}
}

func TestVoteWaitsForMissingBallots(t *testing.T) {
	participants := voteParticipants(8)
	v := NewVoteCoordinator(participants, 4, zerolog.Nop())
	out := runVote(t, v, 200*time.Millisecond)

	for _, id := range participants[:7] {
		require.NoError(t, v.Cast(id, domain.Ballot{Choice: 0}))
	}

	select {
	case <-out:
		t.Fatal("vote resolved before the window closed with a ballot missing")
	case <-time.After(50 * time.Millisecond):
	}

	outcome := <-out
	require.Equal(t, domain.VoteChosen, outcome.Kind)
	require.Equal(t, 7, outcome.Cast)
}

func TestVoteNoBallots(t *testing.T) {
	v := NewVoteCoordinator(voteParticipants(8), 4, zerolog.Nop())
	outcome := v.Run(context.Background(), 20*time.Millisecond)
	require.Equal(t, domain.VoteNoBallots, outcome.Kind)
}

func TestVoteAbortedByContext(t *testing.T) {
	v := NewVoteCoordinator(voteParticipants(8), 4, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := v.Run(ctx, time.Minute)
	require.Equal(t, domain.VoteAborted, outcome.Kind)
}

func TestVoteRecastReplacesBallot(t *testing.T) {
	participants := voteParticipants(8)
	v := NewVoteCoordinator(participants, 4, zerolog.Nop())
	out := runVote(t, v, 200*time.Millisecond)

	require.NoError(t, v.Cast("member-0", domain.Ballot{Choice: 0}))
	require.NoError(t, v.Cast("member-0", domain.Ballot{Choice: 3}))

	outcome := <-out
	require.Equal(t, domain.VoteChosen, outcome.Kind)
	require.Equal(t, 3, outcome.Choice)
	require.Equal(t, 1, outcome.Cast)
}

func TestVotePluralityTieBreaksBySubmissionOrder(t *testing.T) {
	participants := voteParticipants(8)
	v := NewVoteCoordinator(participants, 4, zerolog.Nop())
	out := runVote(t, v, time.Minute)

	// 3 votes for option 1 and 3 for option 0, but option 1's third ballot
	// lands before option 0's: the running count reaches 3 for option 1
	// first, so it wins the tie.
	casts := []struct {
		actor  string
		choice int
	}{
		{"member-0", 1},
		{"member-1", 0},
		{"member-2", 1},
		{"member-3", 0},
		{"member-4", 1},
		{"member-5", 0},
		{"member-6", 2},
		{"member-7", 3},
	}
	for _, c := range casts {
		require.NoError(t, v.Cast(c.actor, domain.Ballot{Choice: c.choice}))
	}

	outcome := <-out
	require.Equal(t, domain.VoteChosen, outcome.Kind)
	require.Equal(t, 1, outcome.Choice)
	require.Equal(t, 3, outcome.Count)
}

func TestVoteSkipMajority(t *testing.T) {
	participants := voteParticipants(8)
	v := NewVoteCoordinator(participants, 4, zerolog.Nop())
	out := runVote(t, v, time.Minute)

	for i, id := range participants {
		ballot := domain.Ballot{Skip: true}
		if i >= 5 {
			ballot = domain.Ballot{Choice: 0}
		}
		require.NoError(t, v.Cast(id, ballot))
	}

	outcome := <-out
	require.Equal(t, domain.VoteSkip, outcome.Kind)
	require.Equal(t, 5, outcome.Count)
}

func TestVoteSkipBallotsTallyTogether(t *testing.T) {
	participants := voteParticipants(7)
	v := NewVoteCoordinator(participants, 4, zerolog.Nop())
	out := runVote(t, v, time.Minute)

	// Skip ballots arrive with whatever Choice the caller left in the
	// struct. They must still count as a single skip option instead of
	// splitting across phantom choices.
	for i := 0; i < 4; i++ {
		require.NoError(t, v.Cast(participants[i], domain.Ballot{Skip: true, Choice: i}))
	}
	for _, id := range participants[4:] {
		require.NoError(t, v.Cast(id, domain.Ballot{Choice: 2}))
	}

	outcome := <-out
	require.Equal(t, domain.VoteSkip, outcome.Kind)
	require.Equal(t, 4, outcome.Count)
}

func TestVoteRejectsChoiceOutsideOptions(t *testing.T) {
	v := NewVoteCoordinator(voteParticipants(8), 4, zerolog.Nop())
	require.ErrorIs(t, v.Cast("member-0", domain.Ballot{Choice: 4}), ErrInvalidChoice)
	require.ErrorIs(t, v.Cast("member-0", domain.Ballot{Choice: -1}), ErrInvalidChoice)
	require.NoError(t, v.Cast("member-0", domain.Ballot{Choice: 3}))
}

func TestVoteOverride(t *testing.T) {
	participants := voteParticipants(8)
	v := NewVoteCoordinator(participants, 4, zerolog.Nop())
	out := runVote(t, v, time.Minute)

	require.NoError(t, v.Cast("member-0", domain.Ballot{Choice: 0}))
	require.NoError(t, v.Cast("member-1", domain.Ballot{Choice: 0}))

	require.NoError(t, v.Override("admin-1"))

	// After the override only the sole decider may vote.
	require.ErrorIs(t, v.Cast("member-2", domain.Ballot{Choice: 0}), ErrVoteOverridden)

	require.NoError(t, v.Cast("admin-1", domain.Ballot{Choice: 3}))

	outcome := <-out
	require.Equal(t, domain.VoteChosen, outcome.Kind)
	require.Equal(t, 3, outcome.Choice)
	require.Equal(t, 1, outcome.Cast)
	require.True(t, outcome.Overridden)
}

func TestVoteRejectsOutsiders(t *testing.T) {
	v := NewVoteCoordinator(voteParticipants(8), 4, zerolog.Nop())
	require.ErrorIs(t, v.Cast("stranger", domain.Ballot{Choice: 0}), ErrNotParticipant)
}

func TestVoteClosedAfterResolve(t *testing.T) {
	v := NewVoteCoordinator(voteParticipants(1), 4, zerolog.Nop())
	out := runVote(t, v, time.Minute)

	require.NoError(t, v.Cast("member-0", domain.Ballot{Choice: 0}))
	<-out

	require.ErrorIs(t, v.Cast("member-0", domain.Ballot{Choice: 1}), ErrVoteClosed)
	require.ErrorIs(t, v.Override("admin-1"), ErrVoteClosed)
}
