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

// Package fts is a client for the third-party FTS bulk-transfer service: it
// submits jobs made of per-file gsiftp-to-gsiftp transfers and polls their
// job state.
package fts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kbase/dts-orchestrator/config"
	"github.com/kbase/dts-orchestrator/httpclient"
)

// FileTransfer names one source/destination pair within a job.
type FileTransfer struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// JobStatus is the subset of an FTS job's status this orchestrator cares
// about: whether it's FINISHED, FAILED, or still running, plus the raw
// body for fts_details.
type JobStatus struct {
	JobId    string `json:"job_id"`
	JobState string `json:"job_state"`
	Raw      string `json:"-"`
}

const (
	JobStateFinished = "FINISHED"
	JobStateFailed   = "FAILED"
)

var client_ *http.Client

// Init builds the mTLS HTTP client used for all FTS calls.
func Init() error {
	c, err := httpclient.New(30*time.Second, config.FTS.CertFile, config.FTS.KeyFile)
	if err != nil {
		return &SubmitError{Message: err.Error()}
	}
	client_ = c
	return nil
}

// Submit creates an FTS job transferring each entry in transfers and
// returns the job id FTS assigned along with its initial status.
func Submit(transfers []FileTransfer) (JobStatus, error) {
	body, err := json.Marshal(struct {
		Files []FileTransfer `json:"files"`
	}{Files: transfers})
	if err != nil {
		return JobStatus{}, &SubmitError{Message: err.Error()}
	}

	req, err := http.NewRequest(http.MethodPost, config.FTS.Server+"/jobs", bytes.NewReader(body))
	if err != nil {
		return JobStatus{}, &SubmitError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client_.Do(req)
	if err != nil {
		return JobStatus{}, &SubmitError{Message: err.Error()}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return JobStatus{}, &SubmitError{Message: fmt.Sprintf("FTS returned %d: %s", resp.StatusCode, respBody)}
	}

	var status JobStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return JobStatus{}, &SubmitError{Message: err.Error()}
	}
	status.Raw = string(respBody)
	return status, nil
}

// Status polls the current job state for jobId.
func Status(jobId string) (JobStatus, error) {
	resp, err := client_.Get(fmt.Sprintf("%s/jobs/%s", config.FTS.Server, jobId))
	if err != nil {
		return JobStatus{}, &PollError{JobId: jobId, Message: err.Error()}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return JobStatus{}, &PollError{JobId: jobId, Message: fmt.Sprintf("FTS returned %d: %s", resp.StatusCode, respBody)}
	}

	var status JobStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return JobStatus{}, &PollError{JobId: jobId, Message: err.Error()}
	}
	status.Raw = string(respBody)
	return status, nil
}
