package service

import (
	"context"
	"fmt"
	"sync"

	"caps-bot/internal/config"
	"caps-bot/internal/constants"
	"caps-bot/internal/domain"
	"caps-bot/internal/platform"
	"caps-bot/internal/rating"

	"github.com/rs/zerolog"
)

// SessionManager is the process-wide registry of active sessions: at most
// one per guild. It arbitrates every control call arriving from the command
// layer and owns the monotonic session counter.
type SessionManager struct {
	cfg       *config.Config
	resolver  *PlayerResolver
	store     platform.Store
	messenger platform.Messenger
	perms     platform.Permissions
	model     rating.Model
	banners   *platform.RenderPool
	logger    zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	counter  int64
	seeded   bool

	lastRegistration map[string]string
	lastMap          map[string]string

	// base is the parent context of every session goroutine; Shutdown
	// cancels it to end all sessions cooperatively.
	base       context.Context
	cancelBase context.CancelFunc
}

func NewSessionManager(
	cfg *config.Config,
	resolver *PlayerResolver,
	store platform.Store,
	messenger platform.Messenger,
	perms platform.Permissions,
	model rating.Model,
	banners *platform.RenderPool,
	logger zerolog.Logger,
) *SessionManager {
	base, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		cfg:              cfg,
		resolver:         resolver,
		store:            store,
		messenger:        messenger,
		perms:            perms,
		model:            model,
		banners:          banners,
		logger:           logger.With().Str("component", "session_manager").Logger(),
		sessions:         make(map[string]*Session),
		lastRegistration: make(map[string]string),
		lastMap:          make(map[string]string),
		base:             base,
		cancelBase:       cancel,
	}
}

// Seed initializes the session counter from the highest persisted match id.
// Must run once before the first StartSession.
func (m *SessionManager) Seed(ctx context.Context) error {
	max, err := m.store.MaxMatchID(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed session counter: %w", err)
	}

	m.mu.Lock()
	m.counter = max
	m.seeded = true
	m.mu.Unlock()

	m.logger.Info().Int64("session_counter", max).Msg("session counter seeded")
	return nil
}

// Shutdown cancels every running session and waits for none; sessions
// observe the cancellation at their next suspension point.
func (m *SessionManager) Shutdown() {
	m.cancelBase()
}

// StartSession registers and starts a new session for a guild. Exactly one
// concurrent caller can win; the rest observe ErrSessionExists.
func (m *SessionManager) StartSession(guildID, channelID, authorID string, members []domain.Member, force bool) (*Session, error) {
	if len(members) != constants.SessionPlayerCount {
		return nil, fmt.Errorf("%w: got %d", ErrPlayerCount, len(members))
	}
	unique := make(map[string]struct{}, len(members))
	for _, member := range members {
		unique[member.ID] = struct{}{}
	}
	if len(unique) != len(members) {
		return nil, ErrDuplicatePlayers
	}

	deps := SessionDeps{
		Config:    m.cfg,
		Resolver:  m.resolver,
		Store:     m.store,
		Messenger: m.messenger,
		Perms:     m.perms,
		Model:     m.model,
		Banners:   m.banners,
		Logger:    m.logger,
	}

	m.mu.Lock()
	if !m.seeded {
		m.mu.Unlock()
		return nil, fmt.Errorf("session manager has not been seeded")
	}
	if _, exists := m.sessions[guildID]; exists {
		m.mu.Unlock()
		return nil, ErrSessionExists
	}
	m.counter++
	session := NewSession(deps, m.counter, guildID, channelID, authorID, members, force)
	m.sessions[guildID] = session
	m.mu.Unlock()

	m.logger.Info().Int64("session_id", session.ID()).Str("guild_id", guildID).Bool("force", force).
		Msg("session registered")

	m.announceRegistration(session)

	go func() {
		// Removal is unconditional: every terminal path, including panics
		// bubbling to the boundary, must leave the registry clean.
		defer m.RemoveSession(guildID)
		final := session.Run(m.base)
		m.closeRegistration(session, final)
	}()

	return session, nil
}

// announceRegistration posts the lobby announcement and remembers its handle
// so it can be rewritten once the session ends.
func (m *SessionManager) announceRegistration(session *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()

	handle, err := m.messenger.Send(ctx, session.GuildID(),
		fmt.Sprintf("Game session %d started with %d players", session.ID(), len(session.members)))
	if err != nil {
		m.logger.Warn().Err(err).Int64("session_id", session.ID()).
			Msg("failed to announce session registration")
		return
	}
	m.SetLastRegistrationMessage(session.GuildID(), handle)
}

// closeRegistration rewrites the lobby announcement with the session's final
// state.
func (m *SessionManager) closeRegistration(session *Session, final domain.SessionState) {
	handle := m.LastRegistrationMessage(session.GuildID())
	if handle == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()

	err := m.messenger.Edit(ctx, session.GuildID(), handle,
		fmt.Sprintf("Game session %d finished: %s", session.ID(), final))
	if err != nil {
		m.logger.Warn().Err(err).Int64("session_id", session.ID()).
			Msg("failed to update session registration message")
	}
}

// FetchSession returns the guild's active session, or nil.
func (m *SessionManager) FetchSession(guildID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[guildID]
}

// AddScore delivers a round score to the guild's session. Only the session
// author may submit scores.
func (m *SessionManager) AddScore(guildID, actorID string, score1, score2 int) error {
	session := m.FetchSession(guildID)
	if session == nil {
		return ErrNoSession
	}
	if actorID != session.AuthorID() {
		return ErrNotAuthorized
	}
	return session.SubmitScore(score1, score2)
}

func (m *SessionManager) CastVote(guildID, actorID string, ballot domain.Ballot) error {
	session := m.FetchSession(guildID)
	if session == nil {
		return ErrNoSession
	}
	return session.CastVote(actorID, ballot)
}

func (m *SessionManager) OverrideVote(guildID, actorID string) error {
	session := m.FetchSession(guildID)
	if session == nil {
		return ErrNoSession
	}
	return session.OverrideVote(actorID)
}

// EndSession requests cooperative cancellation of the guild's session. The
// author or an admin may end a session.
func (m *SessionManager) EndSession(guildID, actorID string) error {
	session := m.FetchSession(guildID)
	if session == nil {
		return ErrNoSession
	}
	if actorID != session.AuthorID() && !m.perms.IsAdmin(actorID, guildID) {
		return ErrNotAuthorized
	}

	session.End()
	m.logger.Info().Int64("session_id", session.ID()).Str("guild_id", guildID).Msg("session end requested")
	return nil
}

// RemoveSession evicts a guild's registry entry. Idempotent and safe to call
// from error paths or for guilds with no session.
func (m *SessionManager) RemoveSession(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, guildID)
}

// StartMapVote offers random maps to the guild's session players and opens a
// plurality vote over them. The winner is applied through SetSessionMap once
// the vote resolves; the offered options are returned immediately.
func (m *SessionManager) StartMapVote(guildID string, amount, index int) ([]string, error) {
	session := m.FetchSession(guildID)
	if session == nil {
		return nil, ErrNoSession
	}

	options := RandomMaps(index, amount, m.LastMap(guildID))
	err := session.StartMapVote(options, func(name string) {
		m.SetSessionMap(guildID, name)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info().Str("guild_id", guildID).Strs("options", options).Msg("map vote opened")
	return options, nil
}

// SetSessionMap records the chosen map on the active session, if any, and
// remembers it as the guild's most recent map.
func (m *SessionManager) SetSessionMap(guildID, name string) {
	m.mu.Lock()
	m.lastMap[guildID] = name
	session := m.sessions[guildID]
	m.mu.Unlock()

	if session != nil {
		session.SetMap(name)
	}
}

// LastMap returns and clears the guild's most recently requested map.
func (m *SessionManager) LastMap(guildID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := m.lastMap[guildID]
	delete(m.lastMap, guildID)
	return name
}

func (m *SessionManager) SetLastRegistrationMessage(guildID, handle string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRegistration[guildID] = handle
}

func (m *SessionManager) LastRegistrationMessage(guildID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRegistration[guildID]
}

// SessionCount reports how many sessions have ever been started, including
// aborted ones.
func (m *SessionManager) SessionCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter
}
