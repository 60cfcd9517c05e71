package config

// settings for the mutually authenticated TLS listener (outbound clients use
// the cert_file/key_file of their own stages or fts section instead)
type tlsConfig struct {
	// server certificate chain and private key
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	// CA bundle used to verify client certificates, including proxy
	// certificate issuers
	ClientCAFile string `yaml:"client_ca_file"`
}
