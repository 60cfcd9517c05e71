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

// Package transferhost holds the two outbound HTTP clients the orchestrator
// uses to talk to the systems that actually move bytes: StageClient POSTs
// stage requests to the stager, and AgentClient calls the transfer-host
// agent's /prepare and /files endpoints.
package transferhost

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kbase/dts-orchestrator/config"
	"github.com/kbase/dts-orchestrator/httpclient"
)

// StageClient submits staging requests to the stager named in
// config.Stages.Staging.
type StageClient struct {
	http *http.Client
}

// NewStageClient builds a StageClient using the staging stage's client
// certificate.
func NewStageClient() (*StageClient, error) {
	c, err := httpclient.New(30*time.Second, config.Stages.Staging.CertFile, config.Stages.Staging.KeyFile)
	if err != nil {
		return nil, &RequestError{Message: err.Error()}
	}
	return &StageClient{http: c}, nil
}

// RequestStaging POSTs {transfer_id, product_id, callback} to the stager's
// URI, per original_source/staging.py's _send_to_staging. A 2xx response
// means the stager accepted the request, not that staging is complete:
// completion arrives later via the /doneStaging callback.
func (c *StageClient) RequestStaging(transferId, productId, callback string) error {
	return c.requestStagingAt(config.Stages.Staging.URI, transferId, productId, callback)
}

func (c *StageClient) requestStagingAt(endpoint, transferId, productId, callback string) error {
	form := url.Values{
		"transfer_id": {transferId},
		"product_id":  {productId},
		"callback":    {callback},
	}
	resp, err := c.http.PostForm(endpoint, form)
	if err != nil {
		return &RequestError{TransferId: transferId, Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return &RequestError{TransferId: transferId, Message: fmt.Sprintf("stager returned %d: %s", resp.StatusCode, body)}
	}
	return nil
}

// AgentClient calls the transfer-host agent that runs alongside the staged
// files: it preprocesses them (if a prepare_activity was given) and lists
// them for the FTS Driver.
type AgentClient struct {
	http *http.Client
}

// NewAgentClient builds an AgentClient using the prepare stage's client
// certificate.
func NewAgentClient() (*AgentClient, error) {
	c, err := httpclient.New(30*time.Second, config.Stages.Prepare.CertFile, config.Stages.Prepare.KeyFile)
	if err != nil {
		return nil, &RequestError{Message: err.Error()}
	}
	return &AgentClient{http: c}, nil
}

// RequestPrepare POSTs {transfer_id, dir, prepare, callback} to the agent
// running on stagerHostname, per SPEC_FULL.md §4.4.
func (c *AgentClient) RequestPrepare(stagerHostname, transferId, dir, activity, callback string) error {
	endpoint := fmt.Sprintf("https://%s:%d/prepare", stagerHostname, config.Stages.Prepare.AgentPort)
	form := url.Values{
		"transfer_id": {transferId},
		"dir":         {dir},
		"prepare":     {activity},
		"callback":    {callback},
	}
	resp, err := c.http.PostForm(endpoint, form)
	if err != nil {
		return &RequestError{TransferId: transferId, Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return &RequestError{TransferId: transferId, Message: fmt.Sprintf("agent returned %d: %s", resp.StatusCode, body)}
	}
	return nil
}

// Files lists the paths of the staged files beneath dir on the agent
// running on stagerHostname, relative to dir, by POSTing the form {dir} to
// the agent's /files endpoint on the configured agent_port.
func (c *AgentClient) Files(stagerHostname, dir string) ([]string, error) {
	endpoint := fmt.Sprintf("https://%s:%d/files", stagerHostname, config.Stages.Prepare.AgentPort)
	return c.filesAt(endpoint, dir)
}

func (c *AgentClient) filesAt(endpoint, dir string) ([]string, error) {
	resp, err := c.http.PostForm(endpoint, url.Values{"dir": {dir}})
	if err != nil {
		return nil, &RequestError{Message: err.Error()}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &RequestError{Message: fmt.Sprintf("agent returned %d: %s", resp.StatusCode, body)}
	}

	var parsed struct {
		Files []string `json:"files"`
		Msg   string   `json:"msg"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &RequestError{Message: err.Error()}
	}
	return parsed.Files, nil
}
