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

package transfer

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kbase/dts-orchestrator/config"
	"github.com/kbase/dts-orchestrator/store"
)

func TestMain(m *testing.M) {
	config.Service.DataDirectory = os.TempDir()
	if err := store.Init(); err != nil {
		panic(err)
	}
	code := m.Run()
	store.Finalize()
	os.Exit(code)
}

func TestSpecificationValidateRejectsNonGsiftpScheme(t *testing.T) {
	spec := Specification{ProductId: "p", DestinationPath: "https://example.org/dest"}
	assert.IsType(t, InvalidSpecificationError{}, spec.Validate())
}

func TestSpecificationValidateRejectsMissingHost(t *testing.T) {
	spec := Specification{ProductId: "p", DestinationPath: "gsiftp:///dest"}
	assert.IsType(t, InvalidSpecificationError{}, spec.Validate())
}

func TestSpecificationValidateAcceptsGsiftpURI(t *testing.T) {
	spec := Specification{ProductId: "p", DestinationPath: "gsiftp://example.org/dest"}
	assert.Nil(t, spec.Validate())
}

func TestSubmitInsertsInitRow(t *testing.T) {
	spec := Specification{
		ProductId:       "product-1",
		DestinationPath: "gsiftp://example.org/dest",
		Submitter:       "/O=Org/CN=alice",
	}
	id, err := Submit(spec)
	assert.Nil(t, err)
	assert.NotEmpty(t, id)

	row, err := store.GetTransfer(id)
	assert.Nil(t, err)
	assert.Equal(t, string(StatusInit), row.Status)
	assert.Equal(t, "product-1", row.ProductId)
}

func TestSubmitPersistsPrepareActivity(t *testing.T) {
	spec := Specification{
		ProductId:       "product-1b",
		DestinationPath: "gsiftp://example.org/dest",
		Submitter:       "/O=Org/CN=alice",
		PrepareActivity: "decompress",
	}
	id, err := Submit(spec)
	assert.Nil(t, err)

	row, err := store.GetTransfer(id)
	assert.Nil(t, err)
	assert.Equal(t, "decompress", row.PrepareActivity)
}

func TestStatusOfRejectsNonSubmitter(t *testing.T) {
	spec := Specification{
		ProductId:       "product-2",
		DestinationPath: "gsiftp://example.org/dest",
		Submitter:       "/O=Org/CN=alice",
	}
	id, err := Submit(spec)
	assert.Nil(t, err)

	_, err = StatusOf(id, "/O=Org/CN=mallory")
	assert.IsType(t, NotSubmitterError{}, err)

	row, err := StatusOf(id, "/O=Org/CN=alice")
	assert.Nil(t, err)
	assert.Equal(t, "product-2", row.ProductId)
}

func TestStatusIsTerminal(t *testing.T) {
	assert.True(t, StatusSuccess.IsTerminal())
	assert.True(t, StatusError.IsTerminal())
	assert.False(t, StatusStaging.IsTerminal())
}
