package service

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Mayur-00/crosspost-api/internal/models"
)

var allowedMediaTypes = map[string]bool{
	"jpg": true, "png": true, "mp4": true,
}

var supportedPlatforms = map[string]bool{
	models.PlatformX:        true,
	models.PlatformLinkedin: true,
}

func normalizePlatforms(platforms []string) ([]string, error) {
	if len(platforms) == 0 {
		err := fmt.Errorf("no platforms selected")
		slog.Info(err.Error())
		return nil, err
	}

	seen := make(map[string]bool, len(platforms))
	normalized := make([]string, 0, len(platforms))
	for _, p := range platforms {
		name := strings.ToLower(strings.TrimSpace(p))
		if !supportedPlatforms[name] {
			err := fmt.Errorf("unsupported platform: %s", p)
			slog.Info(err.Error())
			return nil, err
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		normalized = append(normalized, name)
	}

	return normalized, nil
}
