package platform

import (
	"context"
	"fmt"
	"strings"

	"caps-bot/internal/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LogMessenger is the default Messenger: it writes everything to the process
// log. It stands in until a real chat transport is bound to the engine.
type LogMessenger struct {
	logger zerolog.Logger
}

func NewLogMessenger(logger zerolog.Logger) *LogMessenger {
	return &LogMessenger{logger: logger.With().Str("component", "messenger").Logger()}
}

func (m *LogMessenger) Send(_ context.Context, guildID, content string) (string, error) {
	handle := uuid.New().String()
	m.logger.Info().Str("guild_id", guildID).Str("handle", handle).Msg(content)
	return handle, nil
}

func (m *LogMessenger) Edit(_ context.Context, guildID, handle, content string) error {
	m.logger.Info().Str("guild_id", guildID).Str("handle", handle).Msg(content)
	return nil
}

func (m *LogMessenger) SendFile(_ context.Context, guildID, content string, file []byte) (string, error) {
	handle := uuid.New().String()
	m.logger.Info().Str("guild_id", guildID).Str("handle", handle).Int("file_bytes", len(file)).Msg(content)
	return handle, nil
}

func (m *LogMessenger) Warn(_ context.Context, guildID, content string) error {
	m.logger.Warn().Str("guild_id", guildID).Msg(content)
	return nil
}

// Confirm always declines: there is no interactive surface to ask through.
func (m *LogMessenger) Confirm(_ context.Context, guildID, actorID, prompt string) (bool, error) {
	m.logger.Info().Str("guild_id", guildID).Str("actor_id", actorID).Str("prompt", prompt).
		Msg("confirmation requested with no interactive transport, declining")
	return false, nil
}

// AdminList is a Permissions backed by the configured admin id list.
type AdminList struct {
	ids map[string]struct{}
}

func NewAdminList(cfg *config.Config) *AdminList {
	ids := make(map[string]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		ids[id] = struct{}{}
	}
	return &AdminList{ids: ids}
}

func (a *AdminList) IsAdmin(actorID, _ string) bool {
	_, ok := a.ids[actorID]
	return ok
}

// TextBanner renders the summary banner as plain text bytes. It keeps the
// render path exercised without pulling an image pipeline into the engine.
type TextBanner struct{}

func NewTextBanner() *TextBanner {
	return &TextBanner{}
}

func (TextBanner) Render(_ context.Context, teamNames [2]string, scores [2]int, winnerNames []string) ([]byte, error) {
	banner := fmt.Sprintf("%s %d - %d %s | %s",
		teamNames[0], scores[0], scores[1], teamNames[1], strings.Join(winnerNames, ", "))
	return []byte(banner), nil
}
