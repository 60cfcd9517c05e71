// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// a type with service configuration parameters
type serviceConfig struct {
	// port on which the mutual-TLS listener accepts connections
	Port int `yaml:"port,omitempty"`
	// maximum number of allowed incoming connections
	// default: 100
	MaxConnections int `yaml:"max_connections,omitempty"`
	// name of existing directory in which the orchestrator stores the
	// sqlite database and journal files
	DataDirectory string `yaml:"data_dir"`
	// hostname at which the stager and transfer-host agent can reach this
	// orchestrator's doneStaging/donePrepare callbacks
	CallbackHost string `yaml:"callback_host"`
	// flag indicating whether debug logging is enabled
	Debug bool `yaml:"debug"`
}

// global config variables
var Service serviceConfig
var TLS tlsConfig
var Stages stageConfigs
var FTS ftsConfig
var Queue queueConfig
var AllowedDNs allowedDNConfig

// This struct performs the unmarshalling from the YAML config file and then
// copies its fields to the globals above.
type configFile struct {
	Service serviceConfig   `yaml:"service"`
	TLS     tlsConfig       `yaml:"tls"`
	Stages  stageConfigs    `yaml:"stages"`
	FTS     ftsConfig       `yaml:"fts"`
	Queue   queueConfig     `yaml:"queue"`
	Allow   allowedDNConfig `yaml:"authorization"`
}

// This helper parses the given YAML configuration data, returning an error
// indicating success or failure. All environment variables of the form
// ${ENV_VAR} are expanded before parsing.
func readConfig(bytes []byte) error {
	// before we do anything else, expand any provided environment variables
	bytes = []byte(os.ExpandEnv(string(bytes)))

	var conf configFile
	conf.Service.Port = 8443
	conf.Service.MaxConnections = 100
	conf.FTS.PollingInterval = int(time.Minute / time.Second)
	err := yaml.Unmarshal(bytes, &conf)
	if err != nil {
		log.Printf("Couldn't parse configuration data: %s\n", err)
		return err
	}

	Service = conf.Service
	TLS = conf.TLS
	Stages = conf.Stages
	FTS = conf.FTS
	Queue = conf.Queue
	AllowedDNs = conf.Allow

	return nil
}

func validateServiceParameters(params serviceConfig) error {
	if params.Port < 0 || params.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 0-65535)", params.Port)
	}
	if params.MaxConnections <= 0 {
		return fmt.Errorf("invalid max_connections: %d (must be positive)",
			params.MaxConnections)
	}
	if params.DataDirectory == "" {
		return fmt.Errorf("no data_dir specified")
	}
	if params.CallbackHost == "" {
		return fmt.Errorf("service.callback_host is required")
	}
	return nil
}

func validateTLS(tls tlsConfig) error {
	if tls.CertFile == "" || tls.KeyFile == "" {
		return fmt.Errorf("tls.cert_file and tls.key_file are required")
	}
	if tls.ClientCAFile == "" {
		return fmt.Errorf("tls.client_ca_file is required for mutual TLS")
	}
	return nil
}

func validateStages(stages stageConfigs) error {
	for name, stage := range map[string]stageEndpointConfig{
		"staging": stages.Staging,
		"prepare": stages.Prepare,
	} {
		if stage.ConcurrentMax <= 0 {
			return fmt.Errorf("stages.%s.concurrent_max must be positive", name)
		}
		if stage.DN == "" {
			return fmt.Errorf("stages.%s.dn (authorized caller DN) is required", name)
		}
	}
	if stages.Staging.URI == "" {
		return fmt.Errorf("stages.staging.uri (stager endpoint) is required")
	}
	if stages.Prepare.AgentPort <= 0 {
		return fmt.Errorf("stages.prepare.agent_port must be positive")
	}
	return nil
}

func validateFTS(fts ftsConfig) error {
	if fts.Server == "" {
		return fmt.Errorf("fts.server is required")
	}
	if fts.ConcurrentMax <= 0 {
		return fmt.Errorf("fts.concurrent_max must be positive")
	}
	if fts.PollingInterval <= 0 {
		return fmt.Errorf("fts.polling_interval must be positive")
	}
	return nil
}

func validateQueue(q queueConfig) error {
	if q.URL == "" {
		return fmt.Errorf("queue.url is required")
	}
	if q.StagingQueue == "" || q.PrepareQueue == "" || q.TransferQueue == "" {
		return fmt.Errorf("queue.staging_queue, queue.prepare_queue, and queue.transfer_queue are all required")
	}
	return nil
}

// This helper validates the given configuration, returning an error that
// indicates success or failure.
func validateConfig() error {
	if err := validateServiceParameters(Service); err != nil {
		return err
	}
	if err := validateTLS(TLS); err != nil {
		return err
	}
	if err := validateStages(Stages); err != nil {
		return err
	}
	if err := validateFTS(FTS); err != nil {
		return err
	}
	if err := validateQueue(Queue); err != nil {
		return err
	}
	if len(AllowedDNs.Submitters) == 0 {
		return fmt.Errorf("authorization.submitters must list at least one allowed DN")
	}
	return nil
}

// Initializes the orchestrator's configuration using the given YAML byte
// data.
func Init(yamlData []byte) error {
	if err := readConfig(yamlData); err != nil {
		return err
	}
	return validateConfig()
}
