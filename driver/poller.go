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
	"log/slog"
	"time"

	"github.com/kbase/dts-orchestrator/config"
	"github.com/kbase/dts-orchestrator/fts"
	"github.com/kbase/dts-orchestrator/store"
	"github.com/kbase/dts-orchestrator/transfer"
)

// FTSPoller periodically checks every TRANSFERRING row against FTS and
// closes out the ones that have reached a terminal state. It ticks on a
// single pulse channel the way clock.go's clockState ticks its
// subscribers, simplified to one subscriber since the orchestrator runs
// exactly one poller.
type FTSPoller struct {
	driver *FTSDriver
	tick   time.Duration
	stop   chan struct{}
}

// NewFTSPoller builds an FTSPoller that ticks every
// config.FTS.PollingInterval seconds and releases driver's concurrency
// slots as jobs finish.
func NewFTSPoller(driver *FTSDriver) *FTSPoller {
	return &FTSPoller{
		driver: driver,
		tick:   time.Duration(config.FTS.PollingInterval) * time.Second,
		stop:   make(chan struct{}),
	}
}

// Run ticks until Stop is called, polling all TRANSFERRING transfers on
// each tick.
func (p *FTSPoller) Run() {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.pollAll()
		case <-p.stop:
			return
		}
	}
}

// Stop ends the poller's ticking goroutine.
func (p *FTSPoller) Stop() {
	close(p.stop)
}

func (p *FTSPoller) pollAll() {
	rows, err := store.ListByStatus(string(transfer.StatusTransferring))
	if err != nil {
		slog.Error("poller could not list transferring rows", "error", err)
		return
	}
	for _, row := range rows {
		p.pollOne(row)
	}
}

func (p *FTSPoller) pollOne(row store.Transfer) {
	status, err := fts.Status(row.FTSId)
	if err != nil {
		slog.Warn("poller could not reach FTS", "transfer_id", row.TransferId, "fts_id", row.FTSId, "error", err)
		return
	}

	switch status.JobState {
	case fts.JobStateFinished:
		now := time.Now().UTC()
		nowStr := now.Format(time.RFC3339)
		details := status.Raw
		if err := store.UpdateStatus(row.TransferId, string(transfer.StatusTransferring), string(transfer.StatusSuccess),
			store.Fields{FTSDetails: &details, TimeSuccess: &nowStr}); err != nil {
			slog.Error("poller could not record success", "transfer_id", row.TransferId, "error", err)
			return
		}
		p.driver.Release()
		recordTerminal(row, string(transfer.StatusSuccess), now)
	case fts.JobStateFailed:
		now := time.Now().UTC()
		nowStr := now.Format(time.RFC3339)
		details := status.Raw
		reason := "FTS job failed"
		if err := store.UpdateStatus(row.TransferId, string(transfer.StatusTransferring), string(transfer.StatusError),
			store.Fields{FTSDetails: &details, ExtraStatus: &reason, TimeError: &nowStr}); err != nil {
			slog.Error("poller could not record failure", "transfer_id", row.TransferId, "error", err)
			return
		}
		p.driver.Release()
		recordTerminal(row, string(transfer.StatusError), now)
	default:
		details := status.Raw
		store.UpdateStatus(row.TransferId, string(transfer.StatusTransferring), string(transfer.StatusTransferring),
			store.Fields{FTSDetails: &details})
	}
}
