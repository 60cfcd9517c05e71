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

package store

import (
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Transfer is a single row of the transfers table, mirroring the data model
// one-for-one: nothing here is computed, it's exactly what's persisted.
type Transfer struct {
	TransferId       string
	ProductId        string
	DestinationPath  string
	Submitter        string
	PrepareActivity  string
	Status           string
	ExtraStatus      string
	StagerPath       string
	StagerHostname   string
	StagerStatus     string
	FTSId            string
	FTSDetails       string
	TimeSubmitted    string
	TimeStaging      string
	TimeStagingDone  string
	TimeTransferring string
	TimeError        string
	TimeSuccess      string
}

// Fields carries a sparse set of column updates for UpdateStatus. Only
// non-nil pointers are written; this lets a single call both advance the
// state machine and stamp the columns particular to that transition (e.g.
// stager_path on STAGING -> STAGINGDONE) without every caller needing to
// know the full row shape.
type Fields struct {
	ExtraStatus      *string
	StagerPath       *string
	StagerHostname   *string
	StagerStatus     *string
	FTSId            *string
	FTSDetails       *string
	TimeSubmitted    *string
	TimeStaging      *string
	TimeStagingDone  *string
	TimeTransferring *string
	TimeError        *string
	TimeSuccess      *string
}

func createTransfer(conn *sqlite.Conn, t Transfer) error {
	err := sqlitex.Execute(conn, `
		INSERT INTO transfers
			(transfer_id, product_id, destination_path, submitter,
			 prepare_activity, status, extra_status,
			 stager_path, stager_hostname, stager_status, fts_id, fts_details,
			 time_submitted, time_staging, time_staging_done,
			 time_transferring, time_error, time_success)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				t.TransferId, t.ProductId, t.DestinationPath, t.Submitter,
				nullable(t.PrepareActivity), t.Status, nullable(t.ExtraStatus),
				nullable(t.StagerPath), nullable(t.StagerHostname), nullable(t.StagerStatus),
				nullable(t.FTSId), nullable(t.FTSDetails),
				t.TimeSubmitted, nullable(t.TimeStaging), nullable(t.TimeStagingDone),
				nullable(t.TimeTransferring), nullable(t.TimeError), nullable(t.TimeSuccess),
			},
		})
	if err != nil {
		return &StoreError{TransferId: t.TransferId, Message: err.Error()}
	}
	return nil
}

func getTransfer(conn *sqlite.Conn, transferId string) (Transfer, error) {
	var t Transfer
	found := false
	err := sqlitex.Execute(conn, selectColumns+" WHERE transfer_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{transferId},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				t = scanTransfer(stmt)
				return nil
			},
		})
	if err != nil {
		return Transfer{}, &StoreError{TransferId: transferId, Message: err.Error()}
	}
	if !found {
		return Transfer{}, &NotFoundError{TransferId: transferId}
	}
	return t, nil
}

func listByStatus(conn *sqlite.Conn, statuses []string) ([]Transfer, error) {
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		placeholders[i] = "?"
		args[i] = s
	}
	var ts []Transfer
	err := sqlitex.Execute(conn,
		selectColumns+" WHERE status IN ("+strings.Join(placeholders, ",")+")",
		&sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				ts = append(ts, scanTransfer(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, &StoreError{Message: err.Error()}
	}
	return ts, nil
}

// updateStatus performs the conditional write described in store.go's
// UpdateStatus doc comment: the WHERE clause requires the row's current
// status to match From, so exactly one of two racing writers ever sees
// conn.Changes() == 1.
func updateStatus(conn *sqlite.Conn, u statusUpdate) error {
	sets := []string{"status = ?"}
	args := []any{u.To}

	addField := func(column string, value *string) {
		if value == nil {
			return
		}
		sets = append(sets, column+" = ?")
		args = append(args, *value)
	}
	addField("extra_status", u.Fields.ExtraStatus)
	addField("stager_path", u.Fields.StagerPath)
	addField("stager_hostname", u.Fields.StagerHostname)
	addField("stager_status", u.Fields.StagerStatus)
	addField("fts_id", u.Fields.FTSId)
	addField("fts_details", u.Fields.FTSDetails)
	addField("time_submitted", u.Fields.TimeSubmitted)
	addField("time_staging", u.Fields.TimeStaging)
	addField("time_staging_done", u.Fields.TimeStagingDone)
	addField("time_transferring", u.Fields.TimeTransferring)
	addField("time_error", u.Fields.TimeError)
	addField("time_success", u.Fields.TimeSuccess)

	args = append(args, u.TransferId, u.From)
	query := "UPDATE transfers SET " + strings.Join(sets, ", ") +
		" WHERE transfer_id = ? AND status = ?"

	err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args})
	if err != nil {
		return &StoreError{TransferId: u.TransferId, Message: err.Error()}
	}
	if conn.Changes() != 1 {
		return &StaleStatusError{TransferId: u.TransferId, Expected: u.From}
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const selectColumns = `
	SELECT transfer_id, product_id, destination_path, submitter,
	       IFNULL(prepare_activity, ''), status, IFNULL(extra_status, ''),
	       IFNULL(stager_path, ''), IFNULL(stager_hostname, ''), IFNULL(stager_status, ''),
	       IFNULL(fts_id, ''), IFNULL(fts_details, ''),
	       IFNULL(time_submitted, ''), IFNULL(time_staging, ''), IFNULL(time_staging_done, ''),
	       IFNULL(time_transferring, ''), IFNULL(time_error, ''), IFNULL(time_success, '')
	FROM transfers`

func scanTransfer(stmt *sqlite.Stmt) Transfer {
	return Transfer{
		TransferId:       stmt.ColumnText(0),
		ProductId:        stmt.ColumnText(1),
		DestinationPath:  stmt.ColumnText(2),
		Submitter:        stmt.ColumnText(3),
		PrepareActivity:  stmt.ColumnText(4),
		Status:           stmt.ColumnText(5),
		ExtraStatus:      stmt.ColumnText(6),
		StagerPath:       stmt.ColumnText(7),
		StagerHostname:   stmt.ColumnText(8),
		StagerStatus:     stmt.ColumnText(9),
		FTSId:            stmt.ColumnText(10),
		FTSDetails:       stmt.ColumnText(11),
		TimeSubmitted:    stmt.ColumnText(12),
		TimeStaging:      stmt.ColumnText(13),
		TimeStagingDone:  stmt.ColumnText(14),
		TimeTransferring: stmt.ColumnText(15),
		TimeError:        stmt.ColumnText(16),
		TimeSuccess:      stmt.ColumnText(17),
	}
}
