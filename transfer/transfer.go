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

// Package transfer holds the core domain of the orchestrator: the state
// machine a transfer moves through from submission to SUCCESS or ERROR, and
// the request/result shapes the four drivers pass between themselves and the
// store.
package transfer

import (
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/kbase/dts-orchestrator/store"
)

// Status is one of the nine states a transfer can occupy.
type Status string

const (
	StatusInit           Status = "INIT"
	StatusSubmitted      Status = "SUBMITTED"
	StatusStaging        Status = "STAGING"
	StatusStagingDone    Status = "STAGINGDONE"
	StatusPreparing      Status = "PREPARING"
	StatusPreparingDone  Status = "PREPARINGDONE"
	StatusTransferring   Status = "TRANSFERRING"
	StatusSuccess        Status = "SUCCESS"
	StatusError          Status = "ERROR"
)

// IsTerminal reports whether s is SUCCESS or ERROR: no driver re-enqueues a
// transfer once it reaches one of these.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Specification is what a caller submits to create a transfer.
type Specification struct {
	ProductId       string
	DestinationPath string
	Submitter       string
	PrepareActivity string
}

// Validate checks that DestinationPath parses as a gsiftp:// URI with a
// non-empty host, per §4.2's submit validation step.
func (s Specification) Validate() error {
	if s.ProductId == "" {
		return InvalidSpecificationError{Reason: "product_id is required"}
	}
	u, err := url.Parse(s.DestinationPath)
	if err != nil {
		return InvalidSpecificationError{Reason: "destination_path is not a valid URI"}
	}
	if u.Scheme != "gsiftp" {
		return InvalidSpecificationError{Reason: "destination_path must use the gsiftp scheme"}
	}
	if u.Host == "" {
		return InvalidSpecificationError{Reason: "destination_path must name a host"}
	}
	return nil
}

// NewId allocates a fresh transfer id.
func NewId() string {
	return uuid.New().String()
}

// Submit validates spec, allocates a transfer id, and inserts the INIT row.
// It does not publish to the staging queue: that is the caller's (the
// service layer's) job, since only it knows whether the publish succeeded
// and can advance the row to SUBMITTED accordingly.
func Submit(spec Specification) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	id := NewId()
	err := store.CreateTransfer(store.Transfer{
		TransferId:      id,
		ProductId:       spec.ProductId,
		DestinationPath: spec.DestinationPath,
		Submitter:       spec.Submitter,
		PrepareActivity: spec.PrepareActivity,
		Status:          string(StatusInit),
		TimeSubmitted:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// StatusOf returns the persisted row for transferId, enforcing that only the
// submitter who created it may read it (§4.7).
func StatusOf(transferId, requesterDN string) (store.Transfer, error) {
	t, err := store.GetTransfer(transferId)
	if err != nil {
		return store.Transfer{}, err
	}
	if t.Submitter != requesterDN {
		return store.Transfer{}, NotSubmitterError{TransferId: transferId}
	}
	return t, nil
}
