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
	"net/url"
	"path"
	"time"

	"github.com/kbase/dts-orchestrator/config"
	"github.com/kbase/dts-orchestrator/fts"
	"github.com/kbase/dts-orchestrator/queue"
	"github.com/kbase/dts-orchestrator/store"
	"github.com/kbase/dts-orchestrator/transfer"
	"github.com/kbase/dts-orchestrator/transferhost"
)

// fileLister is the slice of transferhost.AgentClient the FTS driver needs
// to list staged files before handing them to FTS.
type fileLister interface {
	Files(stagerHostname, dir string) ([]string, error)
}

// FTSDriver dequeues transfer ids from the transfer queue, lists the staged
// files via the transfer-host agent, and submits a bulk transfer job to FTS.
// Unlike the staging and prepare stages, the concurrency slot it acquires
// here is not released when this dispatch returns: it stays held for the
// whole TRANSFERRING period and is only released by the FTS Poller once the
// job reaches a terminal state, per original_source/ftsmanager.py's
// _start_fts_transfer/_FTSUpdater split.
type FTSDriver struct {
	sem    semaphore
	client fileLister
}

// NewFTSDriver builds an FTSDriver bounded by config.FTS.ConcurrentMax.
func NewFTSDriver() (*FTSDriver, error) {
	client, err := transferhost.NewAgentClient()
	if err != nil {
		return nil, err
	}
	return &FTSDriver{
		sem:    newSemaphore(config.FTS.ConcurrentMax),
		client: client,
	}, nil
}

// Run consumes the transfer queue until the connection is closed by
// queue.Finalize.
func (d *FTSDriver) Run() error {
	return queue.Consume(config.Queue.TransferQueue, d.handle)
}

// Release frees a concurrency slot held by a transfer that has reached a
// terminal FTS state. Called by the FTS Poller, never by FTSDriver itself.
func (d *FTSDriver) Release() {
	d.sem.release()
}

func (d *FTSDriver) handle(transferId string) error {
	d.sem.acquire()
	if err := d.dispatch(transferId); err != nil {
		d.sem.release()
		return err
	}
	return nil
}

func (d *FTSDriver) dispatch(transferId string) error {
	row, err := store.GetTransfer(transferId)
	if err != nil {
		return err
	}

	files, err := d.client.Files(row.StagerHostname, row.StagerPath)
	if err != nil {
		return d.fail(row, err)
	}

	destBase, err := url.Parse(row.DestinationPath)
	if err != nil {
		return d.fail(row, fmt.Errorf("invalid destination_path %q: %w", row.DestinationPath, err))
	}

	transfers := make([]fts.FileTransfer, len(files))
	for i, f := range files {
		src := fmt.Sprintf("gsiftp://%s%s", row.StagerHostname, path.Join(row.StagerPath, f))
		dst := *destBase
		dst.Path = path.Join(destBase.Path, f)
		transfers[i] = fts.FileTransfer{Source: src, Destination: dst.String()}
	}

	status, err := fts.Submit(transfers)
	if err != nil {
		return d.fail(row, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	ftsId := status.JobId
	details := status.Raw
	return store.UpdateStatus(transferId, string(transfer.StatusPreparingDone), string(transfer.StatusTransferring),
		store.Fields{FTSId: &ftsId, FTSDetails: &details, TimeTransferring: &now})
}

func (d *FTSDriver) fail(row store.Transfer, cause error) error {
	reason := cause.Error()
	errTime := time.Now().UTC()
	errTimeStr := errTime.Format(time.RFC3339)
	if err := store.UpdateStatus(row.TransferId, string(transfer.StatusPreparingDone), string(transfer.StatusError),
		store.Fields{ExtraStatus: &reason, TimeError: &errTimeStr}); err == nil {
		recordTerminal(row, string(transfer.StatusError), errTime)
	}
	return DispatchError{TransferId: row.TransferId, Message: reason}
}
