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
	"fmt"
	"log/slog"
	"time"

	"github.com/kbase/dts-orchestrator/config"
	"github.com/kbase/dts-orchestrator/queue"
	"github.com/kbase/dts-orchestrator/store"
	"github.com/kbase/dts-orchestrator/transfer"
	"github.com/kbase/dts-orchestrator/transferhost"
)

// prepareRequester is the slice of transferhost.AgentClient the driver
// needs for dispatch.
type prepareRequester interface {
	RequestPrepare(stagerHostname, transferId, dir, activity, callback string) error
}

// PrepareDriver dequeues transfer ids from the prepare queue. A transfer
// whose prepare_activity is empty skips the agent call entirely and
// advances straight through, per original_source/prepare.py's
// _do_prepare, which only calls the agent `if prepare_activity is not None`.
type PrepareDriver struct {
	sem         semaphore
	client      prepareRequester
	callbackURL string
}

// NewPrepareDriver builds a PrepareDriver bounded by config.Stages.Prepare's
// concurrent_max.
func NewPrepareDriver(callbackURL string) (*PrepareDriver, error) {
	client, err := transferhost.NewAgentClient()
	if err != nil {
		return nil, err
	}
	return &PrepareDriver{
		sem:         newSemaphore(config.Stages.Prepare.ConcurrentMax),
		client:      client,
		callbackURL: callbackURL,
	}, nil
}

// Run consumes the prepare queue until the connection is closed by
// queue.Finalize.
func (d *PrepareDriver) Run() error {
	return queue.Consume(config.Queue.PrepareQueue, d.handle)
}

func (d *PrepareDriver) handle(transferId string) error {
	d.sem.acquire()

	row, err := store.GetTransfer(transferId)
	if err != nil {
		d.sem.release()
		return err
	}

	if row.PrepareActivity == "" {
		defer d.sem.release()
		return d.skip(transferId)
	}

	if err := d.dispatch(row); err != nil {
		d.sem.release()
		return err
	}
	// the semaphore stays held until Finish handles the /donePrepare callback.
	return nil
}

// skip advances a transfer with no prepare_activity directly to
// PREPARINGDONE and on to the transfer queue, without ever contacting the
// agent.
func (d *PrepareDriver) skip(transferId string) error {
	if err := store.UpdateStatus(transferId, string(transfer.StatusStagingDone), string(transfer.StatusPreparingDone),
		store.Fields{}); err != nil {
		return err
	}
	if err := queue.Publish(config.Queue.TransferQueue, transferId); err != nil {
		return fmt.Errorf("prepare skipped for %s but publish to transfer queue failed: %w", transferId, err)
	}
	return nil
}

func (d *PrepareDriver) dispatch(row store.Transfer) error {
	if err := store.UpdateStatus(row.TransferId, string(transfer.StatusStagingDone), string(transfer.StatusPreparing),
		store.Fields{}); err != nil {
		return err
	}
	if err := d.client.RequestPrepare(row.StagerHostname, row.TransferId, row.StagerPath, row.PrepareActivity, d.callbackURL); err != nil {
		reason := err.Error()
		errTime := time.Now().UTC()
		errTimeStr := errTime.Format(time.RFC3339)
		if uerr := store.UpdateStatus(row.TransferId, string(transfer.StatusPreparing), string(transfer.StatusError),
			store.Fields{ExtraStatus: &reason, TimeError: &errTimeStr}); uerr == nil {
			recordTerminal(row, string(transfer.StatusError), errTime)
		}
		return DispatchError{TransferId: row.TransferId, Message: err.Error()}
	}
	return nil
}

// Finish handles the /donePrepare callback.
func (d *PrepareDriver) Finish(transferId string, success bool, msg string) error {
	row, err := store.GetTransfer(transferId)
	if err != nil {
		return err
	}
	if row.Status != string(transfer.StatusPreparing) {
		slog.Warn("dropping stale prepare callback", "transfer_id", transferId, "status", row.Status)
		return transfer.UnexpectedStatusError{TransferId: transferId, Expected: string(transfer.StatusPreparing), Actual: row.Status}
	}

	// release only once the conditional UpdateStatus below actually wins
	// the transition: see the identical note in stager.go's Finish.
	if !success {
		errTime := time.Now().UTC()
		errTimeStr := errTime.Format(time.RFC3339)
		reason := msg
		err := store.UpdateStatus(transferId, string(transfer.StatusPreparing), string(transfer.StatusError),
			store.Fields{ExtraStatus: &reason, TimeError: &errTimeStr})
		if err == nil {
			d.sem.release()
			recordTerminal(row, string(transfer.StatusError), errTime)
		}
		return err
	}

	if err := store.UpdateStatus(transferId, string(transfer.StatusPreparing), string(transfer.StatusPreparingDone),
		store.Fields{}); err != nil {
		return err
	}
	d.sem.release()
	if err := queue.Publish(config.Queue.TransferQueue, transferId); err != nil {
		return fmt.Errorf("prepare finished for %s but publish to transfer queue failed: %w", transferId, err)
	}
	return nil
}
