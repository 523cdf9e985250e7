package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = EnvDevelopment
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}

	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 20
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.DefaultLanguage == "" {
		cfg.Search.DefaultLanguage = "en"
	}
	if cfg.Search.ProviderLimit == 0 {
		cfg.Search.ProviderLimit = 60
	}
	if cfg.Search.SearchRadiusM == 0 {
		cfg.Search.SearchRadiusM = 5000
	}

	cfg.Ranking.ApplyDefaults()
	cfg.Grouping.ApplyDefaults()
	cfg.Failure.ApplyDefaults()

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreMemory
	}
	if cfg.Store.DatabasePath == "" {
		cfg.Store.DatabasePath = "/usr/local/var/basho/data/db/requests.db"
	}
	if cfg.Store.TTL == 0 {
		cfg.Store.TTL = 300 * time.Second
	}
	if cfg.Store.SweepInterval == 0 {
		cfg.Store.SweepInterval = 60 * time.Second
	}

	if cfg.Hub.HeartbeatInterval == 0 {
		cfg.Hub.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Hub.SendBuffer == 0 {
		cfg.Hub.SendBuffer = 256
	}
	if cfg.Hub.WriteTimeout == 0 {
		cfg.Hub.WriteTimeout = 10 * time.Second
	}
	if cfg.Hub.MaxMessageBytes == 0 {
		cfg.Hub.MaxMessageBytes = 4096
	}
	if cfg.Hub.SubscribeRate == 0 {
		cfg.Hub.SubscribeRate = 10
	}
	if cfg.Hub.SubscribeBurst == 0 {
		cfg.Hub.SubscribeBurst = 20
	}

	if cfg.Jobs.NarrationTimeout == 0 {
		cfg.Jobs.NarrationTimeout = 15 * time.Second
	}
	if cfg.Jobs.RecommendationCount == 0 {
		cfg.Jobs.RecommendationCount = 3
	}
	if cfg.Jobs.QueueSize == 0 {
		cfg.Jobs.QueueSize = 128
	}
	if cfg.Jobs.Workers == 0 {
		cfg.Jobs.Workers = 4
	}
	if cfg.Jobs.DeltaBuffer == 0 {
		cfg.Jobs.DeltaBuffer = 64
	}

	applyCallDefaults(&cfg.Reliability.Intent, 2*time.Second, 2)
	applyCallDefaults(&cfg.Reliability.Geocode, 3*time.Second, 3)
	applyCallDefaults(&cfg.Reliability.Provider, 5*time.Second, 3)

	if cfg.Provider.Kind == "" {
		cfg.Provider.Kind = ProviderFixture
	}
	if cfg.Provider.HTTPTimeout == 0 {
		cfg.Provider.HTTPTimeout = 10 * time.Second
	}
	if cfg.Provider.APIKeyEnv == "" {
		cfg.Provider.APIKeyEnv = "BASHO_PROVIDER_API_KEY"
	}

	if cfg.Narration.Kind == "" {
		cfg.Narration.Kind = NarratorTemplate
	}
	if cfg.Narration.Model == "" {
		cfg.Narration.Model = "gpt-4o-mini"
	}
	if cfg.Narration.APIKeyEnv == "" {
		cfg.Narration.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Narration.MaxTokens == 0 {
		cfg.Narration.MaxTokens = 300
	}
}

func applyCallDefaults(c *CallPolicy, timeout time.Duration, attempts int) {
	if c.Timeout == 0 {
		c.Timeout = timeout
	}
	if c.Attempts == 0 {
		c.Attempts = attempts
	}
	if c.Backoff == 0 {
		c.Backoff = 100 * time.Millisecond
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 2 * time.Second
	}
}
