package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"caps-bot/internal/domain"

	"github.com/stretchr/testify/require"
)

func seededManager(t *testing.T, env *testEnv) *SessionManager {
	t.Helper()
	manager := env.manager()
	require.NoError(t, manager.Seed(context.Background()))
	t.Cleanup(manager.Shutdown)
	return manager
}

func TestManagerSeedsCounterFromPersistedMatches(t *testing.T) {
	env := newTestEnv()
	env.store.maxID = 41
	manager := seededManager(t, env)

	session, err := manager.StartSession(testGuild, "channel-1", "member-0", testMembers(), true)
	require.NoError(t, err)
	require.Equal(t, int64(42), session.ID())
}

func TestManagerRejectsStartBeforeSeed(t *testing.T) {
	env := newTestEnv()
	manager := env.manager()
	t.Cleanup(manager.Shutdown)

	_, err := manager.StartSession(testGuild, "channel-1", "member-0", testMembers(), true)
	require.Error(t, err)
}

func TestManagerValidatesPlayerPool(t *testing.T) {
	env := newTestEnv()
	manager := seededManager(t, env)

	_, err := manager.StartSession(testGuild, "channel-1", "member-0", testMembers()[:7], true)
	require.ErrorIs(t, err, ErrPlayerCount)

	members := testMembers()
	members[7].ID = members[0].ID
	_, err = manager.StartSession(testGuild, "channel-1", "member-0", members, true)
	require.ErrorIs(t, err, ErrDuplicatePlayers)
}

func TestManagerOneSessionPerGuild(t *testing.T) {
	env := newTestEnv()
	manager := seededManager(t, env)

	const starters = 8
	var wg sync.WaitGroup
	errs := make([]error, starters)
	for i := 0; i < starters; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = manager.StartSession(testGuild, "channel-1", "member-0", testMembers(), true)
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		default:
			require.ErrorIs(t, err, ErrSessionExists)
			lost++
		}
	}
	require.Equal(t, 1, won)
	require.Equal(t, starters-1, lost)
	require.Equal(t, int64(1), manager.SessionCount())

	// A second guild is not blocked.
	_, err := manager.StartSession("guild-2", "channel-2", "member-0", testMembers(), true)
	require.NoError(t, err)
}

func TestManagerRemovesSessionOnTerminalState(t *testing.T) {
	env := newTestEnv()
	manager := seededManager(t, env)

	session, err := manager.StartSession(testGuild, "channel-1", "member-0", testMembers(), true)
	require.NoError(t, err)

	require.NoError(t, manager.EndSession(testGuild, "member-0"))
	<-session.Done()

	require.Eventually(t, func() bool {
		return manager.FetchSession(testGuild) == nil
	}, waitFor, tick, "terminal session was not removed from the registry")

	// Removal is idempotent.
	manager.RemoveSession(testGuild)
	require.Nil(t, manager.FetchSession(testGuild))
}

func TestManagerScoreRequiresAuthor(t *testing.T) {
	env := newTestEnv()
	manager := seededManager(t, env)

	require.ErrorIs(t, manager.AddScore(testGuild, "member-0", 6, 3), ErrNoSession)

	session, err := manager.StartSession(testGuild, "channel-1", "member-0", testMembers(), true)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return session.State() == domain.StateRound1
	}, waitFor, tick)

	require.ErrorIs(t, manager.AddScore(testGuild, "member-3", 6, 3), ErrNotAuthorized)
	require.NoError(t, manager.AddScore(testGuild, "member-0", 6, 3))
}

func TestManagerEndSessionAuthorization(t *testing.T) {
	env := newTestEnv()
	manager := seededManager(t, env)

	require.ErrorIs(t, manager.EndSession(testGuild, "member-0"), ErrNoSession)

	_, err := manager.StartSession(testGuild, "channel-1", "member-0", testMembers(), true)
	require.NoError(t, err)

	require.ErrorIs(t, manager.EndSession(testGuild, "member-3"), ErrNotAuthorized)
	require.NoError(t, manager.EndSession(testGuild, "admin-1"))
}

func TestManagerVoteForwarding(t *testing.T) {
	env := newTestEnv()
	manager := seededManager(t, env)

	require.ErrorIs(t, manager.CastVote(testGuild, "member-0", domain.Ballot{}), ErrNoSession)
	require.ErrorIs(t, manager.OverrideVote(testGuild, "member-0"), ErrNoSession)

	session, err := manager.StartSession(testGuild, "channel-1", "member-0", testMembers(), false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return manager.CastVote(testGuild, "member-1", domain.Ballot{Choice: 0}) == nil
	}, waitFor, tick)

	require.NoError(t, manager.OverrideVote(testGuild, "member-0"))
	require.NoError(t, manager.CastVote(testGuild, "member-0", domain.Ballot{Choice: 2}))

	require.Eventually(t, func() bool {
		return session.Match() != nil
	}, waitFor, tick)
}

func TestManagerShutdownAbortsSessions(t *testing.T) {
	env := newTestEnv()
	manager := env.manager()
	require.NoError(t, manager.Seed(context.Background()))

	session, err := manager.StartSession(testGuild, "channel-1", "member-0", testMembers(), true)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return session.State() == domain.StateRound1
	}, waitFor, tick)

	manager.Shutdown()

	select {
	case <-session.Done():
	case <-time.After(waitFor):
		t.Fatal("session survived manager shutdown")
	}
	require.Equal(t, domain.StateAbortedExternal, session.State())
}

func TestManagerRegistrationMessageLifecycle(t *testing.T) {
	env := newTestEnv()
	manager := seededManager(t, env)

	session, err := manager.StartSession(testGuild, "channel-1", "member-0", testMembers(), true)
	require.NoError(t, err)
	require.NotEmpty(t, manager.LastRegistrationMessage(testGuild))

	require.NoError(t, manager.EndSession(testGuild, "member-0"))
	<-session.Done()

	// The announcement is rewritten with the terminal state once the
	// session goroutine exits.
	require.Eventually(t, func() bool {
		for _, edit := range env.messenger.edits() {
			if strings.Contains(edit, "aborted_external") {
				return true
			}
		}
		return false
	}, waitFor, tick)
}

func TestManagerMapTracking(t *testing.T) {
	env := newTestEnv()
	manager := seededManager(t, env)

	require.Empty(t, manager.LastMap(testGuild))

	manager.SetSessionMap(testGuild, "Yavin 4")
	require.Equal(t, "Yavin 4", manager.LastMap(testGuild))

	// The stored map is consumed by the read.
	require.Empty(t, manager.LastMap(testGuild))
}

func TestManagerMapVoteAppliesWinner(t *testing.T) {
	env := newTestEnv()
	manager := seededManager(t, env)

	_, err := manager.StartMapVote(testGuild, 3, 1)
	require.ErrorIs(t, err, ErrNoSession)

	session, err := manager.StartSession(testGuild, "channel-1", "member-0", testMembers(), true)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return session.State() == domain.StateRound1
	}, waitFor, tick)

	options, err := manager.StartMapVote(testGuild, 3, 1)
	require.NoError(t, err)
	require.Len(t, options, 3)

	// One vote at a time per session.
	_, err = manager.StartMapVote(testGuild, 3, 1)
	require.ErrorIs(t, err, ErrVoteInProgress)

	for _, member := range testMembers() {
		require.NoError(t, manager.CastVote(testGuild, member.ID, domain.Ballot{Choice: 1}))
	}

	require.Eventually(t, func() bool {
		return manager.LastMap(testGuild) == options[1]
	}, waitFor, tick, "winning map was not applied to the session")
}

func TestManagerMapVoteSkipKeepsCurrentMap(t *testing.T) {
	env := newTestEnv()
	manager := seededManager(t, env)

	session, err := manager.StartSession(testGuild, "channel-1", "member-0", testMembers(), true)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return session.State() == domain.StateRound1
	}, waitFor, tick)

	_, err = manager.StartMapVote(testGuild, 2, 1)
	require.NoError(t, err)

	for _, member := range testMembers() {
		require.NoError(t, manager.CastVote(testGuild, member.ID, domain.Ballot{Skip: true}))
	}

	// A skipped vote resolves without touching the map, so a second vote can
	// open on the same session.
	require.Eventually(t, func() bool {
		_, err := manager.StartMapVote(testGuild, 2, 1)
		return err == nil
	}, waitFor, tick)
	require.Empty(t, manager.LastMap(testGuild))
}
