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

// Package store holds the single relational `transfers` table that backs the
// orchestrator's state machine. Like the teacher's journal package, the
// sqlite connection gets its own goroutine so a database panic doesn't bring
// down the service, and every caller reaches it through request/response
// channels rather than a shared *sqlite.Conn.
package store

import (
	"path/filepath"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/kbase/dts-orchestrator/config"
)

// Init opens (and if necessary creates) the transfers database beneath
// config.Service.DataDirectory.
func Init() error {
	if !IsOpen() {
		errs := make(chan error, 1)
		go storeProcess(errs)
		select {
		case err := <-errs:
			return err
		case <-time.After(2 * time.Second):
			return &CantOpenError{Message: "timed out waiting for store goroutine to start"}
		}
	}
	return nil
}

// Finalize closes the store, if open.
func Finalize() error {
	if IsOpen() {
		channels_.Input.Shutdown <- struct{}{}
		closeChannels()
	}
	return nil
}

// IsOpen reports whether the store is open for reading and writing.
func IsOpen() bool {
	if channels_.Open {
		channels_.Input.CheckIfOpen <- struct{}{}
		select {
		case isOpen := <-channels_.Output.IsOpen:
			return isOpen
		case <-time.After(1 * time.Second):
			closeChannels()
			return false
		}
	}
	return false
}

// CreateTransfer inserts a new row holding every field of t (its status is
// t.Status) and returns any error.
func CreateTransfer(t Transfer) error {
	if !IsOpen() {
		return &NotOpenError{}
	}
	channels_.Input.Create <- t
	return <-channels_.Output.Error
}

// GetTransfer fetches the row with the given transfer id.
func GetTransfer(transferId string) (Transfer, error) {
	if !IsOpen() {
		return Transfer{}, &NotOpenError{}
	}
	channels_.Input.Get <- transferId
	select {
	case t := <-channels_.Output.Transfer:
		return t, nil
	case err := <-channels_.Output.Error:
		return Transfer{}, err
	}
}

// ListByStatus returns every row whose status matches one of the given
// values. Used by the FTS Poller to find transfers currently in
// TRANSFERRING.
func ListByStatus(statuses ...string) ([]Transfer, error) {
	if !IsOpen() {
		return nil, &NotOpenError{}
	}
	channels_.Input.ListByStatus <- statuses
	select {
	case ts := <-channels_.Output.Transfers:
		return ts, nil
	case err := <-channels_.Output.Error:
		return nil, err
	}
}

// UpdateStatus advances transferId from fromStatus to toStatus, applying the
// field mutations in fields. The update is conditioned on the row's current
// status still being fromStatus (via a `WHERE status = ?` clause); if another
// goroutine has already moved the row on, UpdateStatus returns a
// StaleStatusError and applies nothing. This is how concurrent callback
// delivery and driver dequeues stay safe without a lock: at most one writer
// ever observes conn.Changes() == 1 for a given transition.
func UpdateStatus(transferId, fromStatus, toStatus string, fields Fields) error {
	if !IsOpen() {
		return &NotOpenError{}
	}
	channels_.Input.UpdateStatus <- statusUpdate{
		TransferId: transferId,
		From:       fromStatus,
		To:         toStatus,
		Fields:     fields,
	}
	return <-channels_.Output.Error
}

//-----------
// Internals
//-----------

type statusUpdate struct {
	TransferId, From, To string
	Fields               Fields
}

var channels_ struct {
	Open  bool
	Input struct {
		Create       chan Transfer
		Get          chan string
		ListByStatus chan []string
		UpdateStatus chan statusUpdate
		CheckIfOpen  chan struct{}
		Shutdown     chan struct{}
	}
	Output struct {
		Transfer  chan Transfer
		Transfers chan []Transfer
		Error     chan error
		IsOpen    chan bool
	}
}

func openChannels() {
	channels_.Open = true
	channels_.Input.Create = make(chan Transfer)
	channels_.Input.Get = make(chan string)
	channels_.Input.ListByStatus = make(chan []string)
	channels_.Input.UpdateStatus = make(chan statusUpdate)
	channels_.Input.CheckIfOpen = make(chan struct{})
	channels_.Input.Shutdown = make(chan struct{})
	channels_.Output.Transfer = make(chan Transfer)
	channels_.Output.Transfers = make(chan []Transfer)
	channels_.Output.Error = make(chan error)
	channels_.Output.IsOpen = make(chan bool)
}

func closeChannels() {
	channels_.Open = false
	close(channels_.Input.Create)
	close(channels_.Input.Get)
	close(channels_.Input.ListByStatus)
	close(channels_.Input.UpdateStatus)
	close(channels_.Input.CheckIfOpen)
	close(channels_.Input.Shutdown)
	close(channels_.Output.Transfer)
	close(channels_.Output.Transfers)
	close(channels_.Output.Error)
	close(channels_.Output.IsOpen)
}

func storeProcess(startErr chan<- error) {
	dbPath := filepath.Join(config.Service.DataDirectory, "transfers.db")
	conn, err := sqlite.OpenConn(dbPath, sqlite.OpenReadWrite|sqlite.OpenCreate|sqlite.OpenWAL)
	if err != nil {
		startErr <- &CantOpenError{Message: err.Error()}
		return
	}
	if err := sqlitex.ExecuteScript(conn, schemaSQL, nil); err != nil {
		conn.Close()
		startErr <- &CantOpenError{Message: err.Error()}
		return
	}

	openChannels()
	startErr <- nil

	running := true
	for running {
		select {
		case <-channels_.Input.CheckIfOpen:
			channels_.Output.IsOpen <- true

		case t := <-channels_.Input.Create:
			channels_.Output.Error <- createTransfer(conn, t)

		case transferId := <-channels_.Input.Get:
			t, err := getTransfer(conn, transferId)
			if err != nil {
				channels_.Output.Error <- err
			} else {
				channels_.Output.Transfer <- t
			}

		case statuses := <-channels_.Input.ListByStatus:
			ts, err := listByStatus(conn, statuses)
			if err != nil {
				channels_.Output.Error <- err
			} else {
				channels_.Output.Transfers <- ts
			}

		case update := <-channels_.Input.UpdateStatus:
			channels_.Output.Error <- updateStatus(conn, update)

		case <-channels_.Input.Shutdown:
			conn.Close()
			running = false
		}
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS transfers (
	transfer_id       TEXT PRIMARY KEY,
	product_id        TEXT NOT NULL,
	destination_path  TEXT NOT NULL,
	submitter         TEXT NOT NULL,
	prepare_activity  TEXT,
	status            TEXT NOT NULL,
	extra_status      TEXT,
	stager_path       TEXT,
	stager_hostname   TEXT,
	stager_status     TEXT,
	fts_id            TEXT,
	fts_details       TEXT,
	time_submitted    TEXT,
	time_staging      TEXT,
	time_staging_done TEXT,
	time_transferring TEXT,
	time_error        TEXT,
	time_success      TEXT
);
CREATE INDEX IF NOT EXISTS transfers_status_idx ON transfers(status);
CREATE INDEX IF NOT EXISTS transfers_submitter_idx ON transfers(submitter);
`
