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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kbase/dts-orchestrator/store"
	"github.com/kbase/dts-orchestrator/transfer"
)

type fakeStager struct {
	err error
}

func (f *fakeStager) RequestStaging(transferId, productId, callback string) error {
	return f.err
}

func newTransferRow(t *testing.T, transferId, status string) {
	t.Helper()
	assert.Nil(t, store.CreateTransfer(store.Transfer{
		TransferId:      transferId,
		ProductId:       "product-1",
		DestinationPath: "gsiftp://example.org/dest",
		Submitter:       "/O=Org/CN=alice",
		Status:          status,
	}))
}

func TestStagerDispatchAdvancesToStaging(t *testing.T) {
	newTransferRow(t, "stager-1", string(transfer.StatusSubmitted))
	d := &StagerDriver{sem: newSemaphore(1), client: &fakeStager{}, callbackURL: "https://orchestrator.example/doneStaging"}

	assert.Nil(t, d.dispatch("stager-1"))

	row, err := store.GetTransfer("stager-1")
	assert.Nil(t, err)
	assert.Equal(t, string(transfer.StatusStaging), row.Status)
}

func TestStagerDispatchRecordsErrorOnRequestFailure(t *testing.T) {
	newTransferRow(t, "stager-2", string(transfer.StatusSubmitted))
	d := &StagerDriver{sem: newSemaphore(1), client: &fakeStager{err: errors.New("stager unreachable")}}

	err := d.dispatch("stager-2")
	assert.IsType(t, DispatchError{}, err)

	row, err := store.GetTransfer("stager-2")
	assert.Nil(t, err)
	assert.Equal(t, string(transfer.StatusError), row.Status)
}

func TestStagerFinishDropsStaleCallback(t *testing.T) {
	newTransferRow(t, "stager-3", string(transfer.StatusStagingDone))
	d := &StagerDriver{sem: newSemaphore(1)}
	d.sem.acquire()

	err := d.Finish("stager-3", true, "host", "/path", "ok")
	assert.IsType(t, transfer.UnexpectedStatusError{}, err)
}

func TestStagerFinishRecordsFailure(t *testing.T) {
	newTransferRow(t, "stager-4", string(transfer.StatusStaging))
	d := &StagerDriver{sem: newSemaphore(1)}
	d.sem.acquire()

	err := d.Finish("stager-4", false, "", "", "disk full")
	assert.Nil(t, err)

	row, err := store.GetTransfer("stager-4")
	assert.Nil(t, err)
	assert.Equal(t, string(transfer.StatusError), row.Status)
	assert.Equal(t, "disk full", row.ExtraStatus)
}

// Two /doneStaging callbacks racing for the same transfer both read STAGING
// and pass the staleness guard, but only one of them can win the conditional
// UpdateStatus. Finish must release the semaphore only for the winner: if it
// released unconditionally on the guard passing, both calls would drain a
// token and a slot meant for one dispatch would silently admit two.
func TestStagerFinishReleasesExactlyOnceUnderConcurrentCallbacks(t *testing.T) {
	newTransferRow(t, "stager-5", string(transfer.StatusStaging))
	d := &StagerDriver{sem: newSemaphore(1)}
	d.sem.acquire()

	// success=false takes the conditional-UpdateStatus path without touching
	// queue.Publish, so the test isolates the release race from the
	// no-broker-in-this-binary failure a success=true callback would hit.
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.Finish("stager-5", false, "", "", "disk full")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent Finish call should win the transition")

	acquired := make(chan struct{})
	go func() {
		d.sem.acquire()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("semaphore was never released by the winning Finish call")
	}

	secondAcquired := make(chan struct{})
	go func() {
		d.sem.acquire()
		close(secondAcquired)
	}()
	select {
	case <-secondAcquired:
		t.Fatal("semaphore released a second token: double release occurred")
	case <-time.After(50 * time.Millisecond):
	}
}
