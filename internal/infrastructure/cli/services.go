package cli

import (
	"log/slog"

	"github.com/felixgeelhaar/prnotify/internal/infrastructure/config"
	"github.com/felixgeelhaar/prnotify/internal/infrastructure/wiring"
)

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func loadServices(opts wiring.Options) (*wiring.AppServices, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	services, err := wiring.BuildAppServices(cfg, slog.Default(), opts)
	if err != nil {
		return nil, MapError(err)
	}
	return services, nil
}
