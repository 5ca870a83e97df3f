package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"caps-bot/internal/constants"
	"caps-bot/internal/domain"
	"caps-bot/internal/platform"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PlayerCache holds resolved players keyed by (guild, member). Expiry is
// generational: once the TTL passes, the next access clears the whole guild
// bucket rather than single entries.
type PlayerCache struct {
	mu        sync.Mutex
	players   map[string]map[string]*domain.Player
	lastReset map[string]time.Time
	ttl       time.Duration

	// now is swappable for tests.
	now func() time.Time
}

func NewPlayerCache(ttl time.Duration) *PlayerCache {
	return &PlayerCache{
		players:   make(map[string]map[string]*domain.Player),
		lastReset: make(map[string]time.Time),
		ttl:       ttl,
		now:       time.Now,
	}
}

func (c *PlayerCache) Get(guildID, memberID string) *domain.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(guildID)

	if bucket := c.players[guildID]; bucket != nil {
		return bucket[memberID]
	}
	return nil
}

func (c *PlayerCache) Set(player *domain.Player) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(player.GuildID)

	bucket := c.players[player.GuildID]
	if bucket == nil {
		bucket = make(map[string]*domain.Player)
		c.players[player.GuildID] = bucket
		if _, ok := c.lastReset[player.GuildID]; !ok {
			c.lastReset[player.GuildID] = c.now()
		}
	}
	bucket[player.MemberID] = player
}

// UpdateRating refreshes a cached player's rating parameters in place.
func (c *PlayerCache) UpdateRating(guildID, memberID string, mu, sigma float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if bucket := c.players[guildID]; bucket != nil {
		if player := bucket[memberID]; player != nil {
			player.Mu = mu
			player.Sigma = sigma
		}
	}
}

func (c *PlayerCache) ClearGuild(guildID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.players, guildID)
	delete(c.lastReset, guildID)
}

func (c *PlayerCache) expireLocked(guildID string) {
	last, ok := c.lastReset[guildID]
	if !ok {
		return
	}
	if c.now().Sub(last) >= c.ttl {
		delete(c.players, guildID)
		c.lastReset[guildID] = c.now()
	}
}

// PlayerResolver turns platform members into session players, consulting the
// cache first and persisted stats/ratings on a miss.
type PlayerResolver struct {
	store     platform.Store
	messenger platform.Messenger
	cache     *PlayerCache
	logger    zerolog.Logger
}

func NewPlayerResolver(store platform.Store, messenger platform.Messenger, cache *PlayerCache, logger zerolog.Logger) *PlayerResolver {
	return &PlayerResolver{
		store:     store,
		messenger: messenger,
		cache:     cache,
		logger:    logger.With().Str("component", "resolver").Logger(),
	}
}

func (r *PlayerResolver) Cache() *PlayerCache {
	return r.cache
}

// Resolve returns players for the given members, in input order. Members
// without any configured rank role resolve to tier 0 with a warning; missing
// roles never block match formation.
func (r *PlayerResolver) Resolve(ctx context.Context, guildID string, members []domain.Member) ([]*domain.Player, error) {
	roles, err := r.store.GuildRankRoles(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rank roles: %w", err)
	}
	if !roles.Configured() {
		return nil, ErrRanksNotConfigured
	}

	roleTiers := make(map[string]int, len(roles))
	for tier, roleID := range roles {
		roleTiers[roleID] = tier
	}

	players := make([]*domain.Player, len(members))
	g, gCtx := errgroup.WithContext(ctx)

	for i, member := range members {
		i, member := i, member
		g.Go(func() error {
			player, err := r.resolveOne(gCtx, guildID, member, roleTiers)
			if err != nil {
				return err
			}
			players[i] = player
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return players, nil
}

func (r *PlayerResolver) resolveOne(ctx context.Context, guildID string, member domain.Member, roleTiers map[string]int) (*domain.Player, error) {
	if cached := r.cache.Get(guildID, member.ID); cached != nil {
		r.logger.Debug().Str("guild_id", guildID).Str("member_id", member.ID).Msg("player cache hit")
		return cached, nil
	}

	tier, found := 0, false
	for _, roleID := range member.RoleIDs {
		if t, ok := roleTiers[roleID]; ok {
			tier, found = t, true
			break
		}
	}
	if !found {
		r.logger.Warn().
			Str("guild_id", guildID).
			Str("member_id", member.ID).
			Msg("member has no rank role, defaulting to tier 0")
		if err := r.messenger.Warn(ctx, guildID,
			fmt.Sprintf("%s has no rank role and was placed at the lowest rank", member.DisplayName)); err != nil {
			r.logger.Warn().Err(err).Msg("failed to deliver rank warning")
		}
	}

	stats, err := r.store.MemberStats(ctx, member.ID, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load member stats: %w", err)
	}

	mu, sigma := constants.DefaultRatingMu, float64(constants.DefaultRatingSigma)
	if stats.Mu != nil && stats.Sigma != nil {
		mu, sigma = *stats.Mu, *stats.Sigma
	}

	player := &domain.Player{
		MemberID:    member.ID,
		GuildID:     guildID,
		DisplayName: member.DisplayName,
		Tier:        tier,
		MMR:         stats.Rank,
		Mu:          mu,
		Sigma:       sigma,
	}
	r.cache.Set(player)

	return player, nil
}
