package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	RegistryDir  string
	Port         string
	APIAccessKey string

	// Collaborator endpoints
	GatewayURL     string
	GatewayToken   string
	PreviewBaseURL string
	TranslateURL   string
	TranslateTo    string
	ImageServerURL string

	// Pipeline intervals (seconds)
	ChannelPollInterval    int
	WebChannelPollInterval int
	WebFeedPollInterval    int
	DispatchInterval       int
	WorkerCount            int
	LogRetentionDays       int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
