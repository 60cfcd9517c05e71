package config

// configuration shared by the Stager Driver and Prepare Driver: the
// outbound endpoint to call, the client certificate/key used to
// authenticate that call, the bounded-concurrency limit for the stage, and
// the DN required of the caller that completes it via callback
type stageEndpointConfig struct {
	// URI of the external service (stager POST target; unused for prepare,
	// which is addressed per-transfer at https://{stager_hostname}:{agent_port}/prepare)
	URI string `yaml:"uri,omitempty"`
	// port on which the transfer-host agent listens for prepare/files calls
	AgentPort int `yaml:"agent_port,omitempty"`
	// client certificate/key used for outbound mutual TLS to this service
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	// maximum number of transfers simultaneously occupying this stage
	ConcurrentMax int `yaml:"concurrent_max"`
	// DN required of the certificate presented on this stage's completion
	// callback (StagingFinish for staging, PrepareFinish for prepare)
	DN string `yaml:"dn"`
}

type stageConfigs struct {
	Staging stageEndpointConfig `yaml:"staging"`
	Prepare stageEndpointConfig `yaml:"prepare"`
}
