package service

import "errors"

// Session-state conflicts are reported with sentinel errors so the command
// boundary can map them to user-facing failures without string matching.
var (
	ErrSessionExists      = errors.New("a game session is already running for this guild")
	ErrNoSession          = errors.New("no game session is running for this guild")
	ErrNoActiveRound      = errors.New("session has no round awaiting scores")
	ErrScorePending       = errors.New("a score is already pending for this round")
	ErrNoActiveVote       = errors.New("session has no vote in progress")
	ErrVoteClosed         = errors.New("vote has already been resolved")
	ErrVoteOverridden     = errors.New("vote has been overridden by another actor")
	ErrNotParticipant     = errors.New("actor is not a participant of this vote")
	ErrInvalidChoice      = errors.New("ballot choice is outside the presented options")
	ErrVoteInProgress     = errors.New("another vote is already in progress")
	ErrNotAuthorized      = errors.New("actor is not authorized for this action")
	ErrRanksNotConfigured = errors.New("guild rank roles are not configured")
	ErrDuplicatePlayers   = errors.New("session players must be unique")
	ErrMatchNotFound      = errors.New("no such match")
	ErrMatchTied          = errors.New("a tied match cannot be amended")
)

// ErrPlayerCount signals a malformed player pool. This is a precondition
// violation: callers are expected to never produce it at runtime.
var ErrPlayerCount = errors.New("exactly 8 players are required")
