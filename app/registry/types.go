package registry

type PairConfig struct {
	Source         string `yaml:"source"`
	Destination    string `yaml:"destination"`
	PostingDelay   int    `yaml:"posting_delay"` // minutes
	StripMentions  bool   `yaml:"strip_mentions"`
	StripLinks     bool   `yaml:"strip_links"`
	AddWatermark   bool   `yaml:"add_watermark"`
	RemoveBranding bool   `yaml:"remove_branding"`
	BrandingText   string `yaml:"branding_text"`
	AutoTranslate  bool   `yaml:"auto_translate"`
	CopyMode       string `yaml:"copy_mode"`
	Paused         bool   `yaml:"paused"`
}

type SourceConfig struct {
	URL          string `yaml:"url"`
	Kind         string `yaml:"kind"`
	Selector     string `yaml:"selector"`
	PollInterval int    `yaml:"poll_interval"` // minutes
	Disabled     bool   `yaml:"disabled"`
}

type pairsFile struct {
	Pairs []PairConfig `yaml:"pairs"`
}

type sourcesFile struct {
	Sources []SourceConfig `yaml:"sources"`
}
