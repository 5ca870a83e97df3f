package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"caps-bot/internal/config"
	"caps-bot/internal/constants"
	"caps-bot/internal/domain"
	"caps-bot/internal/platform"
	"caps-bot/internal/rating"

	"github.com/rs/zerolog"
)

// Session owns one active 8-player match lifecycle within one guild. The
// registry holds a reference but never touches internals except through
// SubmitScore, CastVote, OverrideVote, SetMap, StartMapVote and End.
type Session struct {
	id        int64
	guildID   string
	channelID string
	authorID  string
	members   []domain.Member
	force     bool

	cfg       *config.Config
	resolver  *PlayerResolver
	store     platform.Store
	messenger platform.Messenger
	perms     platform.Permissions
	model     rating.Model
	banners   *platform.RenderPool
	logger    zerolog.Logger

	mu      sync.Mutex
	state   domain.SessionState
	players []*domain.Player
	match   *domain.Match
	mapName string
	vote    *VoteCoordinator
	// signals is the single-slot round mailbox; abort travels through cancel.
	signals chan domain.RoundSignal
	ctx     context.Context
	cancel  context.CancelFunc
	// ended records an End that arrived before Run installed the cancel
	// func, so the request is honored instead of dropped.
	ended bool
	done  chan struct{}
}

type SessionDeps struct {
	Config    *config.Config
	Resolver  *PlayerResolver
	Store     platform.Store
	Messenger platform.Messenger
	Perms     platform.Permissions
	Model     rating.Model
	Banners   *platform.RenderPool
	Logger    zerolog.Logger
}

func NewSession(deps SessionDeps, id int64, guildID, channelID, authorID string, members []domain.Member, force bool) *Session {
	return &Session{
		id:        id,
		guildID:   guildID,
		channelID: channelID,
		authorID:  authorID,
		members:   members,
		force:     force,
		cfg:       deps.Config,
		resolver:  deps.Resolver,
		store:     deps.Store,
		messenger: deps.Messenger,
		perms:     deps.Perms,
		model:     deps.Model,
		banners:   deps.Banners,
		logger: deps.Logger.With().
			Int64("session_id", id).
			Str("guild_id", guildID).
			Logger(),
		state:   domain.StateForming,
		signals: make(chan domain.RoundSignal, 1),
		done:    make(chan struct{}),
	}
}

func (s *Session) ID() int64        { return s.id }
func (s *Session) GuildID() string  { return s.guildID }
func (s *Session) AuthorID() string { return s.authorID }

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Match returns the current match, or nil before teams are decided.
func (s *Session) Match() *domain.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.match
}

func (s *Session) SetMap(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapName = name
}

// StartMapVote opens a plurality vote over the offered maps among the session
// players and returns without waiting for the outcome. The winning map is
// delivered through chosen; a skip, an empty vote or an abort leaves the
// current map untouched. At most one vote may run per session at a time, so a
// map vote can never race the team vote for ballots.
func (s *Session) StartMapVote(options []string, chosen func(string)) error {
	s.mu.Lock()
	if s.ctx == nil || s.ctx.Err() != nil || s.state.Terminal() {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.vote != nil {
		s.mu.Unlock()
		return ErrVoteInProgress
	}
	participants := make([]string, len(s.members))
	for i, m := range s.members {
		participants[i] = m.ID
	}
	vote := NewVoteCoordinator(participants, len(options), s.logger)
	s.vote = vote
	ctx := s.ctx
	s.mu.Unlock()

	if _, err := s.messenger.Send(ctx, s.guildID, formatMapPrompt(options)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to present map options")
	}

	go func() {
		outcome := vote.Run(ctx, s.cfg.TeamVoteWindow)

		s.mu.Lock()
		if s.vote == vote {
			s.vote = nil
		}
		s.mu.Unlock()

		if outcome.Kind != domain.VoteChosen || outcome.Choice < 0 || outcome.Choice >= len(options) {
			return
		}
		name := options[outcome.Choice]
		chosen(name)
		if _, err := s.messenger.Send(ctx, s.guildID, fmt.Sprintf("Map vote decided: %s", name)); err != nil {
			s.logger.Warn().Err(err).Msg("failed to announce map vote result")
		}
	}()
	return nil
}

// SubmitScore delivers a round score pair. At most one submission may be in
// flight per round; a second call before the first is consumed is rejected so
// it can never bleed into the next round's accounting.
func (s *Session) SubmitScore(score1, score2 int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.StateRound1 && s.state != domain.StateRound2 {
		return ErrNoActiveRound
	}

	select {
	case s.signals <- domain.RoundSignal{Kind: domain.RoundScoreSubmitted, Score1: score1, Score2: score2}:
		return nil
	default:
		return ErrScorePending
	}
}

// CastVote forwards a ballot to the vote in progress.
func (s *Session) CastVote(actorID string, ballot domain.Ballot) error {
	s.mu.Lock()
	vote := s.vote
	s.mu.Unlock()

	if vote == nil {
		return ErrNoActiveVote
	}
	return vote.Cast(actorID, ballot)
}

// OverrideVote resets the vote in progress and makes actorID the sole
// decider. Only the session author or an admin may override.
func (s *Session) OverrideVote(actorID string) error {
	if actorID != s.authorID && !s.perms.IsAdmin(actorID, s.guildID) {
		return ErrNotAuthorized
	}

	s.mu.Lock()
	vote := s.vote
	s.mu.Unlock()

	if vote == nil {
		return ErrNoActiveVote
	}
	return vote.Override(actorID)
}

// End requests cooperative cancellation. The running state machine observes
// the cancellation at its next suspension point; a blocked round wait wakes
// immediately and can never mistake the abort for a submitted score. An End
// that lands before Run has started is remembered and applied on entry.
func (s *Session) End() {
	s.mu.Lock()
	s.ended = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run drives the session to a terminal state. It is called exactly once, on
// the session's own goroutine, and always closes Done on exit.
func (s *Session) Run(ctx context.Context) domain.SessionState {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ctx = ctx
	s.cancel = cancel
	ended := s.ended
	s.mu.Unlock()
	if ended {
		cancel()
	}
	defer cancel()
	defer close(s.done)

	final := s.run(ctx)

	s.setState(final)
	s.logger.Info().Str("state", final.String()).Msg("session finished")

	if final.Aborted() {
		s.announceAbort(final)
		s.audit("session_aborted", final.String())
	}
	return final
}

func (s *Session) run(ctx context.Context) domain.SessionState {
	players, err := s.resolver.Resolve(ctx, s.guildID, s.members)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to resolve players")
		return domain.StateAbortedExternal
	}

	s.mu.Lock()
	s.players = players
	s.mu.Unlock()

	s.audit("session_started", fmt.Sprintf("players=%d force=%t", len(players), s.force))

	if s.force {
		s.buildMatch(forcedPairing(players))
	} else {
		state, ok := s.voteForTeams(ctx, players)
		if !ok {
			return state
		}
	}

	for round := 1; round <= constants.RoundsPerMatch; round++ {
		state, ok := s.playRound(ctx, round)
		if !ok {
			return state
		}
	}

	if err := s.finalize(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to finalize session")
		return domain.StateAbortedExternal
	}
	return domain.StateComplete
}

// voteForTeams runs the matchmaking vote: pairing pages of four, presented in
// ascending skill-difference order, until one pairing wins or policy aborts.
func (s *Session) voteForTeams(ctx context.Context, players []*domain.Player) (domain.SessionState, bool) {
	s.setState(domain.StateVotingTeams)

	pairings, err := GeneratePairings(players)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to generate pairings")
		return domain.StateAbortedExternal, false
	}

	participants := make([]string, len(players))
	for i, p := range players {
		participants[i] = p.MemberID
	}

	page, regens, retries := 0, 0, 0
	for {
		group := pairingPage(pairings, page)

		if _, err := s.messenger.Send(ctx, s.guildID, formatPairingPrompt(group)); err != nil {
			s.logger.Error().Err(err).Msg("failed to present pairings")
			return domain.StateAbortedExternal, false
		}

		vote := NewVoteCoordinator(participants, len(group), s.logger)
		s.setVote(vote)
		outcome := vote.Run(ctx, s.cfg.TeamVoteWindow)
		s.setVote(nil)

		switch outcome.Kind {
		case domain.VoteAborted:
			return domain.StateAbortedExternal, false

		case domain.VoteChosen:
			if outcome.Choice < 0 || outcome.Choice >= len(group) {
				s.logger.Warn().Int("choice", outcome.Choice).Msg("vote chose an option outside the presented page")
				return domain.StateAbortedNoVote, false
			}
			s.buildMatch(group[outcome.Choice])
			return domain.StateVotingTeams, true

		case domain.VoteSkip:
			if regens < constants.MaxPairingRegens {
				regens++
				page++
				continue
			}
			// Regeneration budget is spent; treat further skips as no votes.
			fallthrough

		case domain.VoteNoBallots:
			if retries >= constants.MaxNoVoteRetries {
				return domain.StateAbortedNoVote, false
			}
			cctx, cancel := context.WithTimeout(ctx, constants.RetryPromptWindow)
			retry, err := s.messenger.Confirm(cctx, s.guildID, s.authorID,
				"No pairing was chosen. Retry the team vote?")
			cancel()
			if err != nil || !retry {
				return domain.StateAbortedNoVote, false
			}
			retries++
		}
	}
}

func (s *Session) playRound(ctx context.Context, round int) (domain.SessionState, bool) {
	roundState := domain.StateRound1
	if round == 2 {
		roundState = domain.StateRound2
	}
	s.setState(roundState)
	s.logger.Info().Int("round", round).Msg("awaiting round scores")

	signal, timedOut := s.waitForScore(ctx)
	if timedOut {
		return domain.StateAbortedTimeout, false
	}
	if signal.Kind == domain.RoundAborted {
		return domain.StateAbortedExternal, false
	}

	s.mu.Lock()
	s.match.Rounds = append(s.match.Rounds, domain.RoundScore{Team1: signal.Score1, Team2: signal.Score2})
	winner := 0
	if signal.Score1 > signal.Score2 {
		winner = 1
	} else if signal.Score2 > signal.Score1 {
		winner = 2
	}
	s.match.RoundWinners = append(s.match.RoundWinners, winner)
	team1, team2 := s.match.Team1.Name, s.match.Team2.Name
	s.mu.Unlock()

	s.logger.Info().Int("round", round).Int("score1", signal.Score1).Int("score2", signal.Score2).
		Msg("round scores recorded")
	if _, err := s.messenger.Send(ctx, s.guildID,
		fmt.Sprintf("Round %d recorded: %s %d - %d %s", round, team1, signal.Score1, signal.Score2, team2)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to announce round result")
	}
	return roundState, true
}

func (s *Session) waitForScore(ctx context.Context) (domain.RoundSignal, bool) {
	timer := time.NewTimer(s.cfg.RoundTimeout)
	defer timer.Stop()

	select {
	case signal := <-s.signals:
		return signal, false
	case <-ctx.Done():
		return domain.RoundSignal{Kind: domain.RoundAborted}, false
	case <-timer.C:
		return domain.RoundSignal{}, true
	}
}

// finalize computes the result, persists it, updates stats and ratings, and
// publishes the summary. Runs on a context detached from session
// cancellation: once a match is decided it must not be lost to a late End.
func (s *Session) finalize(ctx context.Context) error {
	s.setState(domain.StateFinalizing)

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.FinalizeTimeout)
	defer cancel()

	s.mu.Lock()
	m := s.match
	m.FinalScore1 = m.Rounds[0].Team1 + m.Rounds[1].Team1
	m.FinalScore2 = m.Rounds[0].Team2 + m.Rounds[1].Team2

	// On a tie team1 keeps the nominal winner slot; every downstream
	// consumer branches on Tied instead of trusting the slots.
	winnerScores := [2]int{m.Rounds[0].Team1, m.Rounds[1].Team1}
	loserScores := [2]int{m.Rounds[0].Team2, m.Rounds[1].Team2}
	m.Winner, m.Loser = m.Team1, m.Team2
	if m.FinalScore2 > m.FinalScore1 {
		m.Winner, m.Loser = m.Team2, m.Team1
		winnerScores, loserScores = loserScores, winnerScores
	}
	m.Tied = m.FinalScore1 == m.FinalScore2
	mapName := s.mapName
	s.mu.Unlock()

	record := &domain.MatchRecord{
		ID:      s.id,
		GuildID: s.guildID,
		Date:    time.Now(),
		Map:     mapName,
		Winner: domain.TeamResult{
			Name:        m.Winner.Name,
			PlayerIDs:   m.Winner.PlayerIDs(),
			Round1Score: winnerScores[0],
			Round2Score: winnerScores[1],
		},
		Loser: domain.TeamResult{
			Name:        m.Loser.Name,
			PlayerIDs:   m.Loser.PlayerIDs(),
			Round1Score: loserScores[0],
			Round2Score: loserScores[1],
		},
		Tied: m.Tied,
	}

	// Match first, ratings after: the record is keyed by session id and
	// safe to re-apply if anything below fails.
	if err := s.store.UpsertMatch(fctx, record); err != nil {
		return fmt.Errorf("failed to persist match: %w", err)
	}

	if err := s.updateStats(fctx, m); err != nil {
		return err
	}
	if err := s.updateRatings(fctx, m); err != nil {
		return err
	}

	s.announceSummary(fctx, m, record)
	s.audit("session_complete", fmt.Sprintf("winner=%s tied=%t", m.Winner.Name, m.Tied))
	return nil
}

func (s *Session) updateStats(ctx context.Context, m *domain.Match) error {
	for _, team := range []*domain.Team{m.Winner, m.Loser} {
		for _, player := range team.Players {
			stats, err := s.store.MemberStats(ctx, player.MemberID, s.guildID)
			if err != nil {
				return fmt.Errorf("failed to load stats for %s: %w", player.MemberID, err)
			}

			switch {
			case m.Tied:
				stats.Ties++
			case team == m.Winner:
				stats.Wins++
			default:
				stats.Loses++
			}
			stats.Rank = player.Tier

			if err := s.store.UpsertMemberStats(ctx, stats); err != nil {
				return fmt.Errorf("failed to update stats for %s: %w", player.MemberID, err)
			}
		}
	}
	return nil
}

func (s *Session) updateRatings(ctx context.Context, m *domain.Match) error {
	winners := teamRatings(m.Winner)
	losers := teamRatings(m.Loser)

	ratedWinners, ratedLosers := s.model.Rate(winners, losers, m.Tied)

	cache := s.resolver.Cache()
	for _, rated := range append(ratedWinners, ratedLosers...) {
		if err := s.store.UpsertMemberRating(ctx, rated.MemberID, s.guildID, rated.Mu, rated.Sigma); err != nil {
			return fmt.Errorf("failed to persist rating for %s: %w", rated.MemberID, err)
		}
		cache.UpdateRating(s.guildID, rated.MemberID, rated.Mu, rated.Sigma)
	}
	return nil
}

func (s *Session) announceSummary(ctx context.Context, m *domain.Match, record *domain.MatchRecord) {
	headline := fmt.Sprintf("%s won %d - %d against %s",
		m.Winner.Name, record.Winner.TotalScore(), record.Loser.TotalScore(), m.Loser.Name)
	if m.Tied {
		headline = fmt.Sprintf("Teams tied %d - %d", record.Winner.TotalScore(), record.Loser.TotalScore())
	}

	banner, err := s.banners.Render(ctx,
		[2]string{m.Winner.Name, m.Loser.Name},
		[2]int{record.Winner.TotalScore(), record.Loser.TotalScore()},
		m.Winner.PlayerNames())
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to render summary banner")
		if _, err := s.messenger.Send(ctx, s.guildID, headline); err != nil {
			s.logger.Warn().Err(err).Msg("failed to send match summary")
		}
		return
	}

	if _, err := s.messenger.SendFile(ctx, s.guildID, headline, banner); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send match summary")
	}
}

func (s *Session) announceAbort(state domain.SessionState) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()

	var reason string
	switch state {
	case domain.StateAbortedNoVote:
		reason = "Session ended because no teams were chosen"
	case domain.StateAbortedTimeout:
		reason = "Session ended due to timeout"
	default:
		reason = "Session ended"
	}

	if err := s.messenger.Warn(ctx, s.guildID, reason); err != nil {
		s.logger.Warn().Err(err).Msg("failed to announce session abort")
	}
}

func (s *Session) buildMatch(p domain.Pairing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.match = &domain.Match{Team1: p.TeamA, Team2: p.TeamB}
	s.logger.Info().
		Str("team1", p.TeamA.Name).
		Str("team2", p.TeamB.Name).
		Int("skill_diff", p.SkillDiff).
		Msg("match teams locked in")
}

func (s *Session) setState(state domain.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = state
}

func (s *Session) setVote(vote *VoteCoordinator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vote = vote
}

func (s *Session) audit(event, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.DatabaseTimeout)
	defer cancel()

	err := s.store.AppendAudit(ctx, domain.AuditEntry{
		GuildID:   s.guildID,
		SessionID: s.id,
		Event:     event,
		Detail:    detail,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("failed to append audit entry")
	}
}

// teamRatings projects a team onto the rating-model input, keeping player
// order.
func teamRatings(team *domain.Team) []domain.Rating {
	ratings := make([]domain.Rating, len(team.Players))
	for i, p := range team.Players {
		ratings[i] = domain.Rating{MemberID: p.MemberID, Mu: p.Mu, Sigma: p.Sigma}
	}
	return ratings
}

// forcedPairing splits pre-ordered players into two teams of four.
func forcedPairing(players []*domain.Player) domain.Pairing {
	teamA := &domain.Team{Name: randomTeamName()}
	teamB := &domain.Team{Name: randomTeamName()}
	for i, p := range players {
		if i < constants.TeamSize {
			teamA.Players = append(teamA.Players, p)
			teamA.Skill += p.Tier
		} else {
			teamB.Players = append(teamB.Players, p)
			teamB.Skill += p.Tier
		}
	}
	diff := teamA.Skill - teamB.Skill
	if diff < 0 {
		diff = -diff
	}
	return domain.Pairing{TeamA: teamA, TeamB: teamB, SkillDiff: diff}
}

// pairingPage returns the next group of up to four pairings, wrapping back
// to the best-balanced page when skips run past the end of the list.
func pairingPage(pairings []domain.Pairing, page int) []domain.Pairing {
	pages := (len(pairings) + constants.PairingsPerPage - 1) / constants.PairingsPerPage
	start := (page % pages) * constants.PairingsPerPage
	end := start + constants.PairingsPerPage
	if end > len(pairings) {
		end = len(pairings)
	}
	return pairings[start:end]
}

func formatMapPrompt(options []string) string {
	var b strings.Builder
	b.WriteString("Vote for the next map:\n")
	for i, name := range options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, name)
	}
	b.WriteString("or vote to skip and keep the current map")
	return b.String()
}

func formatPairingPrompt(group []domain.Pairing) string {
	var b strings.Builder
	b.WriteString("Vote for a team pairing:\n")
	for i, p := range group {
		fmt.Fprintf(&b, "%d. %s (%d) vs %s (%d) [diff %d]\n",
			i+1, p.TeamA.Name, p.TeamA.Skill, p.TeamB.Name, p.TeamB.Skill, p.SkillDiff)
	}
	b.WriteString("or vote to skip for new pairings")
	return b.String()
}
