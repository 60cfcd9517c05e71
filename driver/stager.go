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

// Package driver holds the four goroutine-driven components that move a
// transfer along its state machine: the Stager Driver, the Prepare Driver,
// the FTS Driver, and the FTS Poller. Each of the first three dequeues
// transfer ids from its own durable queue and holds a counting semaphore
// open across whatever callback or poll eventually closes out the state
// its stage owns, the way transfers/stager.go holds a staging slot open
// across the stager's asynchronous completion notice.
package driver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kbase/dts-orchestrator/config"
	"github.com/kbase/dts-orchestrator/queue"
	"github.com/kbase/dts-orchestrator/store"
	"github.com/kbase/dts-orchestrator/transfer"
	"github.com/kbase/dts-orchestrator/transferhost"
)

// stagingRequester is the slice of transferhost.StageClient the driver
// needs; narrowing it to an interface here lets tests stand in a fake
// stager without an HTTP round trip.
type stagingRequester interface {
	RequestStaging(transferId, productId, callback string) error
}

// StagerDriver dequeues transfer ids from the staging queue, POSTs stage
// requests to the stager, and waits for the /doneStaging callback to
// advance the row and free a concurrency slot.
type StagerDriver struct {
	sem         semaphore
	client      stagingRequester
	callbackURL string
}

// NewStagerDriver builds a StagerDriver bounded by config.Stages.Staging's
// concurrent_max.
func NewStagerDriver(callbackURL string) (*StagerDriver, error) {
	client, err := transferhost.NewStageClient()
	if err != nil {
		return nil, err
	}
	return &StagerDriver{
		sem:         newSemaphore(config.Stages.Staging.ConcurrentMax),
		client:      client,
		callbackURL: callbackURL,
	}, nil
}

// Run consumes the staging queue until the connection is closed by
// queue.Finalize.
func (d *StagerDriver) Run() error {
	return queue.Consume(config.Queue.StagingQueue, d.handle)
}

func (d *StagerDriver) handle(transferId string) error {
	d.sem.acquire()
	if err := d.dispatch(transferId); err != nil {
		d.sem.release()
		return err
	}
	// the semaphore stays held: it's released by Finish when the stager
	// calls back. If the stager never calls back, nothing else releases it.
	return nil
}

func (d *StagerDriver) dispatch(transferId string) error {
	row, err := store.GetTransfer(transferId)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if err := store.UpdateStatus(transferId, string(transfer.StatusSubmitted), string(transfer.StatusStaging),
		store.Fields{TimeStaging: &now}); err != nil {
		return err
	}
	if err := d.client.RequestStaging(transferId, row.ProductId, d.callbackURL); err != nil {
		reason := err.Error()
		errTime := time.Now().UTC()
		errTimeStr := errTime.Format(time.RFC3339)
		if uerr := store.UpdateStatus(transferId, string(transfer.StatusStaging), string(transfer.StatusError),
			store.Fields{ExtraStatus: &reason, TimeError: &errTimeStr}); uerr == nil {
			recordTerminal(row, string(transfer.StatusError), errTime)
		}
		return DispatchError{TransferId: transferId, Message: err.Error()}
	}
	return nil
}

// Finish handles the /doneStaging callback. If the row is no longer in
// STAGING, the callback is stale (the transfer already moved on, most
// likely to ERROR via some other path) and is dropped without touching the
// semaphore a second time.
func (d *StagerDriver) Finish(transferId string, success bool, stagedTo, path, msg string) error {
	row, err := store.GetTransfer(transferId)
	if err != nil {
		return err
	}
	if row.Status != string(transfer.StatusStaging) {
		slog.Warn("dropping stale staging callback", "transfer_id", transferId, "status", row.Status)
		return transfer.UnexpectedStatusError{TransferId: transferId, Expected: string(transfer.StatusStaging), Actual: row.Status}
	}

	// the semaphore is released only once the conditional UpdateStatus
	// below actually wins the transition: two concurrent callbacks for
	// the same transfer both pass the guard above, but only one of them
	// gets Changes() == 1, so only that one may release the token it
	// acquired on dispatch.
	if !success {
		errTime := time.Now().UTC()
		errTimeStr := errTime.Format(time.RFC3339)
		reason := msg
		err := store.UpdateStatus(transferId, string(transfer.StatusStaging), string(transfer.StatusError),
			store.Fields{ExtraStatus: &reason, TimeError: &errTimeStr})
		if err == nil {
			d.sem.release()
			recordTerminal(row, string(transfer.StatusError), errTime)
		}
		return err
	}

	if err := store.UpdateStatus(transferId, string(transfer.StatusStaging), string(transfer.StatusStagingDone),
		store.Fields{StagerPath: &path, StagerHostname: &stagedTo, StagerStatus: &msg}); err != nil {
		return err
	}
	d.sem.release()
	if err := queue.Publish(config.Queue.PrepareQueue, transferId); err != nil {
		return fmt.Errorf("staging finished for %s but publish to prepare queue failed: %w", transferId, err)
	}
	return nil
}
