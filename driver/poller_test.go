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

package driver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kbase/dts-orchestrator/config"
	"github.com/kbase/dts-orchestrator/fts"
	"github.com/kbase/dts-orchestrator/store"
	"github.com/kbase/dts-orchestrator/transfer"
)

func newTransferringRow(t *testing.T, transferId, ftsId string) {
	t.Helper()
	assert.Nil(t, store.CreateTransfer(store.Transfer{
		TransferId:      transferId,
		ProductId:       "product-1",
		DestinationPath: "gsiftp://dest.example.org/outbox",
		Submitter:       "/O=Org/CN=alice",
		FTSId:           ftsId,
		Status:          string(transfer.StatusTransferring),
	}))
}

func TestPollerAdvancesToSuccessOnFinished(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"job_id": "job-fin", "job_state": "FINISHED"}`))
	}))
	defer server.Close()
	config.FTS.Server = server.URL
	assert.Nil(t, fts.Init())

	newTransferringRow(t, "poll-1", "job-fin")
	ftsDriver := &FTSDriver{sem: newSemaphore(1)}
	ftsDriver.sem.acquire()
	p := NewFTSPoller(ftsDriver)

	row, err := store.GetTransfer("poll-1")
	assert.Nil(t, err)
	p.pollOne(row)

	got, err := store.GetTransfer("poll-1")
	assert.Nil(t, err)
	assert.Equal(t, string(transfer.StatusSuccess), got.Status)

	// the semaphore slot must have been freed: a second acquire must not block
	select {
	case ftsDriver.sem <- struct{}{}:
	default:
		t.Fatal("poller did not release the FTS driver's concurrency slot")
	}
}

func TestPollerAdvancesToErrorOnFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"job_id": "job-fail", "job_state": "FAILED"}`))
	}))
	defer server.Close()
	config.FTS.Server = server.URL
	assert.Nil(t, fts.Init())

	newTransferringRow(t, "poll-2", "job-fail")
	ftsDriver := &FTSDriver{sem: newSemaphore(1)}
	ftsDriver.sem.acquire()
	p := NewFTSPoller(ftsDriver)

	row, err := store.GetTransfer("poll-2")
	assert.Nil(t, err)
	p.pollOne(row)

	got, err := store.GetTransfer("poll-2")
	assert.Nil(t, err)
	assert.Equal(t, string(transfer.StatusError), got.Status)
}

func TestPollerLeavesRunningJobsTransferring(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"job_id": "job-run", "job_state": "ACTIVE"}`))
	}))
	defer server.Close()
	config.FTS.Server = server.URL
	assert.Nil(t, fts.Init())

	newTransferringRow(t, "poll-3", "job-run")
	p := NewFTSPoller(&FTSDriver{sem: newSemaphore(1)})

	row, err := store.GetTransfer("poll-3")
	assert.Nil(t, err)
	p.pollOne(row)

	got, err := store.GetTransfer("poll-3")
	assert.Nil(t, err)
	assert.Equal(t, string(transfer.StatusTransferring), got.Status)
}
