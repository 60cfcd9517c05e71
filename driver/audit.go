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

	"github.com/kbase/dts-orchestrator/journal"
	"github.com/kbase/dts-orchestrator/store"
)

// recordTerminal appends an audit-journal entry for a transfer that just
// reached SUCCESS or ERROR. Every driver calls this immediately after the
// store.UpdateStatus call that actually wins the terminal transition, never
// before, so a transfer that never reaches a terminal status never gets a
// record, and a stale/losing UpdateStatus never produces a duplicate one. A
// journal write failure is logged, not propagated: the audit trail is a
// side channel and must never roll back or block the transition it
// describes.
func recordTerminal(row store.Transfer, status string, stopTime time.Time) {
	startTime, err := time.Parse(time.RFC3339, row.TimeSubmitted)
	if err != nil {
		startTime = stopTime
	}
	err = journal.RecordTransfer(journal.Record{
		TransferId:  row.TransferId,
		Source:      row.ProductId,
		Destination: row.DestinationPath,
		Submitter:   row.Submitter,
		StartTime:   startTime,
		StopTime:    stopTime,
		Status:      status,
		FTSJobId:    row.FTSId,
	})
	if err != nil {
		slog.Error("could not write audit journal record", "transfer_id", row.TransferId, "status", status, "error", err)
	}
}
