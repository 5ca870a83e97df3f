// Package server is the HTTP command boundary: thin JSON glue that forwards
// structured commands into the session engine and maps its sentinel errors
// to status codes.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"caps-bot/internal/domain"
	"caps-bot/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type CapsServer struct {
	manager *service.SessionManager
	matches *service.MatchService
	guilds  *service.GuildService
	logger  zerolog.Logger
}

func NewCapsServer(manager *service.SessionManager, matches *service.MatchService, guilds *service.GuildService, logger zerolog.Logger) *CapsServer {
	return &CapsServer{
		manager: manager,
		matches: matches,
		guilds:  guilds,
		logger:  logger.With().Str("component", "http").Logger(),
	}
}

func (s *CapsServer) Register(r chi.Router) {
	r.Route("/v1/guilds/{guildID}", func(r chi.Router) {
		r.Post("/session", s.startSession)
		r.Get("/session", s.getSession)
		r.Delete("/session", s.endSession)
		r.Post("/session/score", s.addScore)
		r.Post("/session/vote", s.castVote)
		r.Post("/session/override", s.overrideVote)
		r.Post("/session/map", s.setMap)
		r.Post("/session/mapvote", s.startMapVote)
		r.Get("/maps", s.randomMaps)
		r.Post("/roles", s.setRoles)
		r.Post("/cache/flush", s.flushCache)
		r.Get("/matches/{matchID}", s.matchSummary)
		r.Post("/matches/{matchID}/amend", s.amendMatch)
		r.Get("/members/{userID}/career", s.career)
		r.Get("/leaderboard", s.leaderboard)
	})
}

type memberPayload struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	RoleIDs     []string `json:"role_ids"`
}

type startSessionRequest struct {
	ChannelID string          `json:"channel_id"`
	AuthorID  string          `json:"author_id"`
	Force     bool            `json:"force"`
	Members   []memberPayload `json:"members"`
}

func (s *CapsServer) startSession(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	members := make([]domain.Member, len(req.Members))
	for i, m := range req.Members {
		members[i] = domain.Member{
			ID:          m.ID,
			GuildID:     guildID,
			DisplayName: m.DisplayName,
			RoleIDs:     m.RoleIDs,
		}
	}

	session, err := s.manager.StartSession(guildID, req.ChannelID, req.AuthorID, members, req.Force)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": session.ID(),
		"state":      session.State().String(),
	})
}

func (s *CapsServer) getSession(w http.ResponseWriter, r *http.Request) {
	session := s.manager.FetchSession(chi.URLParam(r, "guildID"))
	if session == nil {
		s.writeError(w, r, service.ErrNoSession)
		return
	}

	resp := map[string]any{
		"session_id": session.ID(),
		"author_id":  session.AuthorID(),
		"state":      session.State().String(),
	}
	if match := session.Match(); match != nil {
		resp["team1"] = match.Team1.Name
		resp["team2"] = match.Team2.Name
		resp["rounds"] = match.Rounds
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type actorRequest struct {
	ActorID string `json:"actor_id"`
}

func (s *CapsServer) endSession(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.manager.EndSession(chi.URLParam(r, "guildID"), req.ActorID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ended": true})
}

type addScoreRequest struct {
	ActorID    string `json:"actor_id"`
	Team1Score int    `json:"team1_score"`
	Team2Score int    `json:"team2_score"`
}

func (s *CapsServer) addScore(w http.ResponseWriter, r *http.Request) {
	var req addScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.manager.AddScore(chi.URLParam(r, "guildID"), req.ActorID, req.Team1Score, req.Team2Score); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"accepted": true})
}

type castVoteRequest struct {
	ActorID string `json:"actor_id"`
	Skip    bool   `json:"skip"`
	Choice  int    `json:"choice"`
}

func (s *CapsServer) castVote(w http.ResponseWriter, r *http.Request) {
	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := s.manager.CastVote(chi.URLParam(r, "guildID"), req.ActorID, domain.Ballot{Skip: req.Skip, Choice: req.Choice})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"accepted": true})
}

func (s *CapsServer) overrideVote(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.manager.OverrideVote(chi.URLParam(r, "guildID"), req.ActorID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"accepted": true})
}

type setMapRequest struct {
	Name string `json:"name"`
}

func (s *CapsServer) setMap(w http.ResponseWriter, r *http.Request) {
	var req setMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !service.KnownMap(req.Name) {
		http.Error(w, "unknown map", http.StatusBadRequest)
		return
	}

	s.manager.SetSessionMap(chi.URLParam(r, "guildID"), req.Name)
	s.writeJSON(w, http.StatusOK, map[string]any{"map": req.Name})
}

type mapVoteRequest struct {
	Amount int `json:"amount"`
	Index  int `json:"index"`
}

func (s *CapsServer) startMapVote(w http.ResponseWriter, r *http.Request) {
	req := mapVoteRequest{Amount: 1, Index: 1}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Amount < 1 || req.Amount > 3 || req.Index < 1 || req.Index > 3 {
		http.Error(w, "amount and index must be between 1 and 3", http.StatusBadRequest)
		return
	}

	maps, err := s.manager.StartMapVote(chi.URLParam(r, "guildID"), req.Amount, req.Index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"maps": maps})
}

func (s *CapsServer) randomMaps(w http.ResponseWriter, r *http.Request) {
	amount := queryInt(r, "amount", 1)
	index := queryInt(r, "index", 1)
	if amount < 1 || amount > 3 || index < 1 || index > 3 {
		http.Error(w, "amount and index must be between 1 and 3", http.StatusBadRequest)
		return
	}

	maps := service.RandomMaps(index, amount, s.manager.LastMap(chi.URLParam(r, "guildID")))
	s.writeJSON(w, http.StatusOK, map[string]any{"maps": maps})
}

type setRolesRequest struct {
	ActorID string `json:"actor_id"`
	Rank0   string `json:"rank0_role"`
	Rank1   string `json:"rank1_role"`
	Rank2   string `json:"rank2_role"`
	Rank3   string `json:"rank3_role"`
}

func (s *CapsServer) setRoles(w http.ResponseWriter, r *http.Request) {
	var req setRolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	roles := domain.RankRoles{0: req.Rank0, 1: req.Rank1, 2: req.Rank2, 3: req.Rank3}
	if err := s.guilds.SetRankRoles(r.Context(), req.ActorID, chi.URLParam(r, "guildID"), roles); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (s *CapsServer) flushCache(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.guilds.FlushCache(req.ActorID, chi.URLParam(r, "guildID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"flushed": true})
}

func (s *CapsServer) matchSummary(w http.ResponseWriter, r *http.Request) {
	matchID, err := strconv.ParseInt(chi.URLParam(r, "matchID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}

	record, banner, err := s.matches.Summary(r.Context(), chi.URLParam(r, "guildID"), matchID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"match_id": record.ID,
		"date":     record.Date,
		"map":      record.Map,
		"winner":   record.Winner,
		"loser":    record.Loser,
		"tied":     record.Tied,
		"banner":   banner,
	})
}

func (s *CapsServer) amendMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := strconv.ParseInt(chi.URLParam(r, "matchID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}

	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	record, err := s.matches.Amend(r.Context(), req.ActorID, chi.URLParam(r, "guildID"), matchID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"match_id": record.ID,
		"winner":   record.Winner,
		"loser":    record.Loser,
	})
}

func (s *CapsServer) career(w http.ResponseWriter, r *http.Request) {
	career, err := s.matches.Career(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "guildID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := map[string]any{
		"wins":      career.Stats.Wins,
		"loses":     career.Stats.Loses,
		"ties":      career.Stats.Ties,
		"win_ratio": career.WinRatio,
	}
	if career.Rated {
		resp["rating"] = career.Ordinal
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *CapsServer) leaderboard(w http.ResponseWriter, r *http.Request) {
	kind := domain.LeaderboardKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = domain.LeaderboardWins
	}

	rows, err := s.matches.Leaderboard(r.Context(), chi.URLParam(r, "guildID"), kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *CapsServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode response")
	}
}

func (s *CapsServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNoSession), errors.Is(err, service.ErrMatchNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrSessionExists),
		errors.Is(err, service.ErrNoActiveRound),
		errors.Is(err, service.ErrScorePending),
		errors.Is(err, service.ErrNoActiveVote),
		errors.Is(err, service.ErrVoteClosed),
		errors.Is(err, service.ErrVoteOverridden),
		errors.Is(err, service.ErrMatchTied),
		errors.Is(err, service.ErrVoteInProgress):
		status = http.StatusConflict
	case errors.Is(err, service.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrPlayerCount),
		errors.Is(err, service.ErrDuplicatePlayers),
		errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, service.ErrInvalidChoice),
		errors.Is(err, service.ErrRanksNotConfigured):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	http.Error(w, err.Error(), status)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return fallback
}
