package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"caps-bot/internal/config"
	"caps-bot/internal/domain"
	"caps-bot/internal/platform"

	"github.com/rs/zerolog"
)

// fakeStore is an in-memory platform.Store. Every method is safe for
// concurrent use so sessions can run on their own goroutines under test.
type fakeStore struct {
	mu        sync.Mutex
	rankRoles map[string]domain.RankRoles
	stats     map[string]domain.MemberStats
	matches   map[int64]*domain.MatchRecord
	audit     []domain.AuditEntry
	maxID     int64

	statsErr error
	matchErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rankRoles: make(map[string]domain.RankRoles),
		stats:     make(map[string]domain.MemberStats),
		matches:   make(map[int64]*domain.MatchRecord),
	}
}

func statsKey(userID, guildID string) string { return userID + "/" + guildID }

func (f *fakeStore) GuildRankRoles(_ context.Context, guildID string) (domain.RankRoles, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if roles, ok := f.rankRoles[guildID]; ok {
		return roles, nil
	}
	return domain.RankRoles{}, nil
}

func (f *fakeStore) SetGuildRankRoles(_ context.Context, guildID string, roles domain.RankRoles) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rankRoles[guildID] = roles
	return nil
}

func (f *fakeStore) MemberStats(_ context.Context, userID, guildID string) (domain.MemberStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsErr != nil {
		return domain.MemberStats{}, f.statsErr
	}
	if stats, ok := f.stats[statsKey(userID, guildID)]; ok {
		return stats, nil
	}
	return domain.MemberStats{UserID: userID, GuildID: guildID}, nil
}

func (f *fakeStore) UpsertMemberStats(_ context.Context, stats domain.MemberStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[statsKey(stats.UserID, stats.GuildID)] = stats
	return nil
}

func (f *fakeStore) UpsertMemberRating(_ context.Context, userID, guildID string, mu, sigma float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := f.stats[statsKey(userID, guildID)]
	stats.UserID, stats.GuildID = userID, guildID
	stats.Mu, stats.Sigma = &mu, &sigma
	f.stats[statsKey(userID, guildID)] = stats
	return nil
}

func (f *fakeStore) Match(_ context.Context, id int64) (*domain.MatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record, ok := f.matches[id]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeStore) UpsertMatch(_ context.Context, record *domain.MatchRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.matchErr != nil {
		return f.matchErr
	}
	copied := *record
	f.matches[record.ID] = &copied
	return nil
}

func (f *fakeStore) MaxMatchID(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxID, nil
}

func (f *fakeStore) Leaderboard(_ context.Context, _ string, _ domain.LeaderboardKind, _ int) ([]domain.LeaderboardRow, error) {
	return nil, nil
}

func (f *fakeStore) AppendAudit(_ context.Context, entry domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audit = append(f.audit, entry)
	return nil
}

func (f *fakeStore) memberStats(userID, guildID string) domain.MemberStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats[statsKey(userID, guildID)]
}

func (f *fakeStore) match(id int64) *domain.MatchRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matches[id]
}

func (f *fakeStore) auditEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := make([]string, len(f.audit))
	for i, entry := range f.audit {
		events[i] = entry.Event
	}
	return events
}

// fakeMessenger records everything and answers Confirm from a scripted
// channel, declining once the script runs dry.
type fakeMessenger struct {
	mu       sync.Mutex
	sent     []string
	edited   []string
	warned   []string
	files    int
	confirms []bool
}

func newFakeMessenger() *fakeMessenger { return &fakeMessenger{} }

func (m *fakeMessenger) Send(_ context.Context, _, content string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, content)
	return fmt.Sprintf("msg-%d", len(m.sent)), nil
}

func (m *fakeMessenger) Edit(_ context.Context, _, _, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edited = append(m.edited, content)
	return nil
}

func (m *fakeMessenger) SendFile(_ context.Context, _, content string, _ []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, content)
	m.files++
	return fmt.Sprintf("msg-%d", len(m.sent)), nil
}

func (m *fakeMessenger) Warn(_ context.Context, _, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warned = append(m.warned, content)
	return nil
}

func (m *fakeMessenger) Confirm(_ context.Context, _, _, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.confirms) == 0 {
		return false, nil
	}
	answer := m.confirms[0]
	m.confirms = m.confirms[1:]
	return answer, nil
}

func (m *fakeMessenger) edits() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.edited...)
}

func (m *fakeMessenger) warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.warned...)
}

type fakePerms struct {
	admins map[string]bool
}

func (p *fakePerms) IsAdmin(actorID, _ string) bool { return p.admins[actorID] }

// fakeModel nudges every mu by a fixed delta and records how it was called.
type fakeModel struct {
	mu    sync.Mutex
	calls int
	tied  bool
}

func (m *fakeModel) Rate(winners, losers []domain.Rating, tied bool) ([]domain.Rating, []domain.Rating) {
	m.mu.Lock()
	m.calls++
	m.tied = tied
	m.mu.Unlock()

	bump := func(team []domain.Rating, delta float64) []domain.Rating {
		rated := make([]domain.Rating, len(team))
		for i, r := range team {
			rated[i] = domain.Rating{MemberID: r.MemberID, Mu: r.Mu + delta, Sigma: r.Sigma}
		}
		return rated
	}
	if tied {
		return bump(winners, 0), bump(losers, 0)
	}
	return bump(winners, 1), bump(losers, -1)
}

func (m *fakeModel) called() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, m.tied
}

const testGuild = "guild-1"

func testConfig() *config.Config {
	return &config.Config{
		TeamVoteWindow: 2 * time.Second,
		RoundTimeout:   2 * time.Second,
		CacheTTL:       24 * time.Hour,
	}
}

// testMembers returns 8 members whose single role id encodes their rank
// tier, matched by testRankRoles.
func testMembers() []domain.Member {
	tiers := []int{3, 3, 2, 2, 1, 1, 0, 0}
	members := make([]domain.Member, len(tiers))
	for i, tier := range tiers {
		members[i] = domain.Member{
			ID:          fmt.Sprintf("member-%d", i),
			GuildID:     testGuild,
			DisplayName: fmt.Sprintf("Player %d", i),
			RoleIDs:     []string{fmt.Sprintf("role-%d", tier)},
		}
	}
	return members
}

func testRankRoles() domain.RankRoles {
	return domain.RankRoles{0: "role-0", 1: "role-1", 2: "role-2", 3: "role-3"}
}

type testEnv struct {
	cfg       *config.Config
	store     *fakeStore
	messenger *fakeMessenger
	perms     *fakePerms
	model     *fakeModel
	resolver  *PlayerResolver
	deps      SessionDeps
}

func newTestEnv() *testEnv {
	cfg := testConfig()
	store := newFakeStore()
	store.rankRoles[testGuild] = testRankRoles()
	messenger := newFakeMessenger()
	perms := &fakePerms{admins: map[string]bool{"admin-1": true}}
	model := &fakeModel{}
	logger := zerolog.Nop()

	cache := NewPlayerCache(cfg.CacheTTL)
	resolver := NewPlayerResolver(store, messenger, cache, logger)
	banners := platform.NewRenderPool(platform.NewTextBanner(), logger)

	return &testEnv{
		cfg:       cfg,
		store:     store,
		messenger: messenger,
		perms:     perms,
		model:     model,
		resolver:  resolver,
		deps: SessionDeps{
			Config:    cfg,
			Resolver:  resolver,
			Store:     store,
			Messenger: messenger,
			Perms:     perms,
			Model:     model,
			Banners:   banners,
			Logger:    logger,
		},
	}
}

func (e *testEnv) manager() *SessionManager {
	return NewSessionManager(e.cfg, e.resolver, e.store, e.messenger, e.perms, e.model,
		e.deps.Banners, zerolog.Nop())
}
