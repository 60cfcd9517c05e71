package config

// the process-wide allow-list of DNs permitted to use /submitTransfer;
// written once at startup and read-only thereafter
type allowedDNConfig struct {
	Submitters []string `yaml:"submitters"`
}
