package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"ainotebook/internal/apperr"
	"ainotebook/internal/store"
)

var errConfigNotFound = apperr.NotFound("API config not found or access denied")

// ConfigStats summarises a user's configs.
type ConfigStats struct {
	TotalConfigs int      `json:"totalConfigs"`
	TotalModels  int      `json:"totalModels"`
	Providers    []string `json:"providers"`
}

// ListConfigs returns the user's configs with masked keys.
func (s *Service) ListConfigs(ctx context.Context, userID string) ([]store.APIConfig, error) {
	configs, err := s.userConfigs(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range configs {
		configs[i] = configs[i].Masked()
	}
	return configs, nil
}

// CreateConfig stores a new config. Names are unique per user.
func (s *Service) CreateConfig(ctx context.Context, userID string, in CreateConfigInput) (store.APIConfig, error) {
	if err := in.Validate(); err != nil {
		return store.APIConfig{}, err
	}
	name := strings.TrimSpace(in.Name)
	models := in.Models
	if models == nil {
		models = []string{}
	}

	cfg, err := s.configs.Create(ctx, func(existing []store.APIConfig) (store.APIConfig, error) {
		if nameExists(existing, userID, name, "") {
			return store.APIConfig{}, apperr.Conflict("API config name already exists")
		}
		now := store.Now()
		return store.APIConfig{
			ID:        uuid.NewString(),
			Name:      name,
			BaseURL:   in.BaseURL,
			APIKey:    in.APIKey,
			Models:    models,
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	})
	if err != nil {
		return store.APIConfig{}, err
	}
	s.logger.WithFields(map[string]interface{}{
		"user_id":   userID,
		"config_id": cfg.ID,
		"provider":  ProviderFromURL(cfg.BaseURL),
	}).Info("API config created")
	return cfg.Masked(), nil
}

// UpdateConfig changes a config owned by userID.
func (s *Service) UpdateConfig(ctx context.Context, userID, id string, in UpdateConfigInput) (store.APIConfig, error) {
	if err := in.Validate(); err != nil {
		return store.APIConfig{}, err
	}

	cfg, err := s.configs.UpdateChecked(ctx, id, func(existing []store.APIConfig, c *store.APIConfig) error {
		if c.UserID != userID {
			return errConfigNotFound
		}
		if in.Name != nil && nameExists(existing, userID, strings.TrimSpace(*in.Name), id) {
			return apperr.Conflict("API config name already exists")
		}
		if in.Name != nil {
			c.Name = strings.TrimSpace(*in.Name)
		}
		if in.BaseURL != nil {
			c.BaseURL = *in.BaseURL
		}
		if in.APIKey != nil {
			c.APIKey = *in.APIKey
		}
		if in.Models != nil {
			c.Models = append([]string{}, (*in.Models)...)
		}
		c.UpdatedAt = store.Now()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return store.APIConfig{}, errConfigNotFound
	}
	if err != nil {
		return store.APIConfig{}, err
	}
	return cfg.Masked(), nil
}

// DeleteConfig removes a config owned by userID.
func (s *Service) DeleteConfig(ctx context.Context, userID, id string) error {
	cfg, err := s.configs.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && cfg.UserID != userID) {
		return errConfigNotFound
	}
	if err != nil {
		return err
	}
	if _, err := s.configs.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errConfigNotFound
		}
		return err
	}
	return nil
}

// ConfigStats counts the user's configs, distinct models and providers.
func (s *Service) ConfigStats(ctx context.Context, userID string) (ConfigStats, error) {
	configs, err := s.userConfigs(ctx, userID)
	if err != nil {
		return ConfigStats{}, err
	}

	models := make(map[string]bool)
	seen := make(map[string]bool)
	providers := make([]string, 0)
	for _, c := range configs {
		for _, m := range c.Models {
			models[m] = true
		}
		p := statsProvider(c.BaseURL)
		if !seen[p] {
			seen[p] = true
			providers = append(providers, p)
		}
	}
	return ConfigStats{
		TotalConfigs: len(configs),
		TotalModels:  len(models),
		Providers:    providers,
	}, nil
}

// CleanupConfigs removes records missing a required field and returns how
// many were dropped.
func (s *Service) CleanupConfigs(ctx context.Context) (int, error) {
	n, err := s.configs.DeleteWhere(ctx, func(c store.APIConfig) bool { return !c.Valid() })
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.WithContext("removed", n).Warn("removed invalid API configs")
	}
	return n, nil
}

func (s *Service) userConfigs(ctx context.Context, userID string) ([]store.APIConfig, error) {
	all, err := s.configs.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]store.APIConfig, 0, len(all))
	for _, c := range all {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func nameExists(configs []store.APIConfig, userID, name, exceptID string) bool {
	for _, c := range configs {
		if c.UserID == userID && c.Name == name && c.ID != exceptID {
			return true
		}
	}
	return false
}
