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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kbase/dts-orchestrator/config"
)

func TestMain(m *testing.M) {
	config.Service.DataDirectory = os.TempDir()
	if err := Init(); err != nil {
		panic(err)
	}
	code := m.Run()
	Finalize()
	os.Exit(code)
}

func TestCreateAndGetTransfer(t *testing.T) {
	tr := Transfer{
		TransferId:      "t-1",
		ProductId:       "product-1",
		DestinationPath: "gsiftp://example.org/dest",
		Submitter:       "/O=Org/CN=alice",
		Status:          "INIT",
		TimeSubmitted:   "2026-08-01T00:00:00Z",
	}
	err := CreateTransfer(tr)
	assert.Nil(t, err)

	got, err := GetTransfer("t-1")
	assert.Nil(t, err)
	assert.Equal(t, "product-1", got.ProductId)
	assert.Equal(t, "INIT", got.Status)
}

func TestGetTransferNotFound(t *testing.T) {
	_, err := GetTransfer("does-not-exist")
	assert.IsType(t, &NotFoundError{}, err)
}

func TestUpdateStatusConditionalOnCurrentStatus(t *testing.T) {
	tr := Transfer{
		TransferId:      "t-2",
		ProductId:       "product-2",
		DestinationPath: "gsiftp://example.org/dest",
		Submitter:       "/O=Org/CN=alice",
		Status:          "INIT",
		TimeSubmitted:   "2026-08-01T00:00:00Z",
	}
	assert.Nil(t, CreateTransfer(tr))

	err := UpdateStatus("t-2", "INIT", "SUBMITTED", Fields{})
	assert.Nil(t, err)

	got, err := GetTransfer("t-2")
	assert.Nil(t, err)
	assert.Equal(t, "SUBMITTED", got.Status)

	// a second writer racing against the same precondition loses
	err = UpdateStatus("t-2", "INIT", "SUBMITTED", Fields{})
	assert.IsType(t, &StaleStatusError{}, err)
}

func TestUpdateStatusSetsSparseFields(t *testing.T) {
	tr := Transfer{
		TransferId:      "t-3",
		ProductId:       "product-3",
		DestinationPath: "gsiftp://example.org/dest",
		Submitter:       "/O=Org/CN=alice",
		Status:          "STAGING",
	}
	assert.Nil(t, CreateTransfer(tr))

	path := "/data/staged/t-3"
	host := "stager-host.example.org"
	err := UpdateStatus("t-3", "STAGING", "STAGINGDONE", Fields{
		StagerPath:     &path,
		StagerHostname: &host,
	})
	assert.Nil(t, err)

	got, err := GetTransfer("t-3")
	assert.Nil(t, err)
	assert.Equal(t, "STAGINGDONE", got.Status)
	assert.Equal(t, path, got.StagerPath)
	assert.Equal(t, host, got.StagerHostname)
}

func TestListByStatus(t *testing.T) {
	assert.Nil(t, CreateTransfer(Transfer{
		TransferId:      "t-4",
		ProductId:       "p",
		DestinationPath: "gsiftp://example.org/dest",
		Submitter:       "/O=Org/CN=alice",
		Status:          "TRANSFERRING",
	}))
	ts, err := ListByStatus("TRANSFERRING")
	assert.Nil(t, err)
	found := false
	for _, tr := range ts {
		if tr.TransferId == "t-4" {
			found = true
		}
	}
	assert.True(t, found)
}
