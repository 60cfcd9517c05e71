package config

// configuration for the third-party FTS bulk-transfer service
type ftsConfig struct {
	// base URL of the FTS REST endpoint
	Server string `yaml:"server"`
	// client certificate/key used for outbound mutual TLS to FTS
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	// maximum number of transfers simultaneously in TRANSFERRING
	ConcurrentMax int `yaml:"concurrent_max"`
	// interval, in seconds, between FTS Poller ticks
	PollingInterval int `yaml:"polling_interval"`
}
