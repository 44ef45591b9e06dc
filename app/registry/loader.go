// Package registry loads the configured channel pairs and web sources from
// YAML files and seeds them into the database, where collectors and the API
// read them from.
package registry

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"crosspost/app/database"
)

type Loader struct {
	registryDir string
}

func NewLoader(registryDir string) *Loader {
	return &Loader{registryDir: registryDir}
}

func (l *Loader) LoadPairs() ([]PairConfig, error) {
	path := filepath.Join(l.registryDir, "pairs.yml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file pairsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for i := range file.Pairs {
		applyPairDefaults(&file.Pairs[i])
		if err := validatePair(&file.Pairs[i]); err != nil {
			return nil, fmt.Errorf("invalid pair at index %d: %w", i, err)
		}
	}

	return file.Pairs, nil
}

func (l *Loader) LoadSources() ([]SourceConfig, error) {
	path := filepath.Join(l.registryDir, "sources.yml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for i := range file.Sources {
		applySourceDefaults(&file.Sources[i])
		if err := validateSource(&file.Sources[i]); err != nil {
			return nil, fmt.Errorf("invalid source at index %d: %w", i, err)
		}
	}

	return file.Sources, nil
}

// Sync upserts configured pairs and sources into the database, keyed by
// their natural identity (source+destination for pairs, URL for sources).
// Entities created through the API are left untouched.
func (l *Loader) Sync(pairRepo database.PairRepository, sourceRepo database.SourceRepository) error {
	pairs, err := l.LoadPairs()
	if err != nil {
		return err
	}
	sources, err := l.LoadSources()
	if err != nil {
		return err
	}

	existingPairs, err := pairRepo.GetPairs()
	if err != nil {
		return fmt.Errorf("failed to load existing pairs: %w", err)
	}
	pairsByKey := make(map[string]database.ChannelPair, len(existingPairs))
	for _, p := range existingPairs {
		pairsByKey[p.Source+"\x00"+p.Destination] = p
	}

	for _, cfg := range pairs {
		pair := pairFromConfig(cfg)
		if existing, ok := pairsByKey[cfg.Source+"\x00"+cfg.Destination]; ok {
			pair.ID = existing.ID
			pair.Status = existing.Status
			if cfg.Paused {
				pair.Status = database.PairStatusPaused
			}
			if err := pairRepo.UpdatePair(pair); err != nil {
				return fmt.Errorf("failed to update pair %s -> %s: %w", cfg.Source, cfg.Destination, err)
			}
			slog.Debug("Pair updated from registry", "source", cfg.Source, "destination", cfg.Destination)
		} else {
			if err := pairRepo.CreatePair(pair); err != nil {
				return fmt.Errorf("failed to create pair %s -> %s: %w", cfg.Source, cfg.Destination, err)
			}
			slog.Info("Pair registered", "source", cfg.Source, "destination", cfg.Destination, "copy_mode", pair.CopyMode)
		}
	}

	existingSources, err := sourceRepo.GetSources()
	if err != nil {
		return fmt.Errorf("failed to load existing sources: %w", err)
	}
	sourcesByURL := make(map[string]database.WebSource, len(existingSources))
	for _, s := range existingSources {
		sourcesByURL[s.URL] = s
	}

	for _, cfg := range sources {
		source := sourceFromConfig(cfg)
		if existing, ok := sourcesByURL[cfg.URL]; ok {
			source.ID = existing.ID
			if err := sourceRepo.UpdateSource(source); err != nil {
				return fmt.Errorf("failed to update source %s: %w", cfg.URL, err)
			}
			slog.Debug("Source updated from registry", "url", cfg.URL)
		} else {
			if err := sourceRepo.CreateSource(source); err != nil {
				return fmt.Errorf("failed to create source %s: %w", cfg.URL, err)
			}
			slog.Info("Source registered", "url", cfg.URL, "kind", cfg.Kind)
		}
	}

	return nil
}

func pairFromConfig(cfg PairConfig) *database.ChannelPair {
	status := database.PairStatusActive
	if cfg.Paused {
		status = database.PairStatusPaused
	}

	return &database.ChannelPair{
		Source:         cfg.Source,
		Destination:    cfg.Destination,
		Status:         status,
		PostingDelay:   cfg.PostingDelay,
		StripMentions:  cfg.StripMentions,
		StripLinks:     cfg.StripLinks,
		AddWatermark:   cfg.AddWatermark,
		RemoveBranding: cfg.RemoveBranding,
		BrandingText:   cfg.BrandingText,
		AutoTranslate:  cfg.AutoTranslate,
		CopyMode:       database.CopyMode(cfg.CopyMode),
	}
}

func sourceFromConfig(cfg SourceConfig) *database.WebSource {
	return &database.WebSource{
		URL:          cfg.URL,
		Kind:         database.SourceKind(cfg.Kind),
		Selector:     cfg.Selector,
		Active:       !cfg.Disabled,
		PollInterval: cfg.PollInterval,
	}
}

func applyPairDefaults(cfg *PairConfig) {
	if cfg.CopyMode == "" {
		cfg.CopyMode = string(database.CopyModeAutoPublish)
	}
}

func applySourceDefaults(cfg *SourceConfig) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5
	}
}

func validatePair(cfg *PairConfig) error {
	if cfg.Source == "" {
		return fmt.Errorf("source is required")
	}
	if cfg.Destination == "" {
		return fmt.Errorf("destination is required")
	}
	if cfg.PostingDelay < 0 {
		return fmt.Errorf("posting_delay must be non-negative")
	}
	switch database.CopyMode(cfg.CopyMode) {
	case database.CopyModeAutoPublish, database.CopyModeDraft:
	default:
		return fmt.Errorf("invalid copy_mode: %s", cfg.CopyMode)
	}
	return nil
}

func validateSource(cfg *SourceConfig) error {
	if cfg.URL == "" {
		return fmt.Errorf("url is required")
	}
	if cfg.PollInterval < 0 {
		return fmt.Errorf("poll_interval must be non-negative")
	}
	switch database.SourceKind(cfg.Kind) {
	case database.SourceKindRSS:
		if cfg.Selector != "" {
			return fmt.Errorf("selector is only valid for html sources")
		}
	case database.SourceKindHTML:
	default:
		return fmt.Errorf("invalid kind: %s", cfg.Kind)
	}
	return nil
}
