package fx

import (
	"caps-bot/internal/config"
	"caps-bot/internal/database"
	"caps-bot/internal/logger"
	"caps-bot/internal/platform"
	"caps-bot/internal/rating"
	"caps-bot/internal/repository"
	"caps-bot/internal/server"
	"caps-bot/internal/service"

	"go.uber.org/fx"
)

func ProvideStore(store *repository.Store) platform.Store {
	return store
}

func ProvideMessenger(m *platform.LogMessenger) platform.Messenger {
	return m
}

func ProvidePermissions(a *platform.AdminList) platform.Permissions {
	return a
}

func ProvideBannerRenderer(b *platform.TextBanner) platform.BannerRenderer {
	return b
}

func ProvideRatingModel(e *rating.Elo) rating.Model {
	return e
}

func ProvidePlayerCache(cfg *config.Config) *service.PlayerCache {
	return service.NewPlayerCache(cfg.CacheTTL)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewGuildRepository),
	fx.Provide(repository.NewMemberRepository),
	fx.Provide(repository.NewMatchRepository),
	fx.Provide(repository.NewAuditRepository),
	fx.Provide(repository.NewStore),
	fx.Provide(ProvideStore),
	// collaborators
	fx.Provide(platform.NewLogMessenger),
	fx.Provide(platform.NewAdminList),
	fx.Provide(platform.NewTextBanner),
	fx.Provide(ProvideMessenger),
	fx.Provide(ProvidePermissions),
	fx.Provide(ProvideBannerRenderer),
	fx.Provide(platform.NewRenderPool),
	fx.Provide(rating.NewElo),
	fx.Provide(ProvideRatingModel),
	// svc
	fx.Provide(ProvidePlayerCache),
	fx.Provide(service.NewPlayerResolver),
	fx.Provide(service.NewSessionManager),
	fx.Provide(service.NewMatchService),
	fx.Provide(service.NewGuildService),
	// server
	fx.Provide(server.NewCapsServer),
)
