package builder

import (
	"github.com/adaptive-sql/querygate/internal/config"
	"github.com/gofiber/fiber/v2"
)

// FromYAML creates a Builder from a YAML configuration file. The envFiles
// parameter specifies which .env files to load before parsing the config;
// files are loaded in order, first has highest priority.
func FromYAML(path string, envFiles []string) (*Builder, error) {
	if len(envFiles) > 0 {
		config.LoadEnvFiles(envFiles)
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	return &Builder{
		cfg:         cfg,
		middlewares: []fiber.Handler{},
	}, nil
}
