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

package service

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kbase/dts-orchestrator/config"
	"github.com/kbase/dts-orchestrator/driver"
	"github.com/kbase/dts-orchestrator/store"
	"github.com/kbase/dts-orchestrator/transfer"
)

func TestMain(m *testing.M) {
	config.Service.DataDirectory = os.TempDir()
	config.AllowedDNs.Submitters = []string{"/O=Org/CN=alice"}
	config.Stages.Staging.DN = "/O=Org/CN=stager"
	config.Stages.Prepare.DN = "/O=Org/CN=agent"
	if err := store.Init(); err != nil {
		panic(err)
	}
	code := m.Run()
	store.Finalize()
	os.Exit(code)
}

func withCert(req *http.Request, dn string) *http.Request {
	cert := &x509.Certificate{Subject: dnToName(dn)}
	req.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{cert}}
	return req
}

// dnToName builds a pkix.Name whose CommonName is the CN component of dn;
// the tests here only ever vary by CN, so that's all this needs to parse.
func dnToName(dn string) pkix.Name {
	const prefix = "/O=Org/CN="
	return pkix.Name{Organization: []string{"Org"}, CommonName: dn[len(prefix):]}
}

func newStatusRow(t *testing.T, transferId, submitter, status string) {
	t.Helper()
	assert.Nil(t, store.CreateTransfer(store.Transfer{
		TransferId:      transferId,
		ProductId:       "product-1",
		DestinationPath: "gsiftp://dest.example.org/outbox",
		Submitter:       submitter,
		Status:          status,
	}))
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := New(&driver.StagerDriver{}, &driver.PrepareDriver{})
	assert.Nil(t, err)
	return s
}

func TestAuthMiddlewareRejectsMissingCertificate(t *testing.T) {
	s := newTestService(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/transferStatus?transfer_id=whatever", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareRejectsUnauthorizedDN(t *testing.T) {
	s := newTestService(t)
	req := withCert(httptest.NewRequest(http.MethodGet, "/api/v1/transferStatus?transfer_id=whatever", nil), "/O=Org/CN=mallory")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTransferStatusReturnsRowForSubmitter(t *testing.T) {
	newStatusRow(t, "svc-1", "/O=Org/CN=alice", string(transfer.StatusStaging))
	s := newTestService(t)
	req := withCert(httptest.NewRequest(http.MethodGet, "/api/v1/transferStatus?transfer_id=svc-1", nil), "/O=Org/CN=alice")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var body TransferStatusResponse
	assert.Nil(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "svc-1", body.TransferId)
	assert.Equal(t, string(transfer.StatusStaging), body.Status)
}

func TestTransferStatusRejectsNonSubmitter(t *testing.T) {
	newStatusRow(t, "svc-2", "/O=Org/CN=someoneelse", string(transfer.StatusStaging))
	s := newTestService(t)
	req := withCert(httptest.NewRequest(http.MethodGet, "/api/v1/transferStatus?transfer_id=svc-2", nil), "/O=Org/CN=alice")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSubmitTransferRejectsInvalidSpec(t *testing.T) {
	s := newTestService(t)
	body := []byte(`{"product_id": "", "destination_path": "not-a-uri"}`)
	req := withCert(httptest.NewRequest(http.MethodPost, "/api/v1/submitTransfer", bytes.NewReader(body)), "/O=Org/CN=alice")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// With no broker dialed in this test binary, queue.Publish always fails
// with a NotOpenError, so a valid submission should come back as a 500
// and the row should be left in INIT rather than advanced to SUBMITTED.
func TestSubmitTransferLeavesRowInInitWhenPublishFails(t *testing.T) {
	const productId = "product-svc-init"
	countInit := func() int {
		rows, err := store.ListByStatus(string(transfer.StatusInit))
		assert.Nil(t, err)
		n := 0
		for _, row := range rows {
			if row.ProductId == productId {
				n++
			}
		}
		return n
	}
	before := countInit()

	s := newTestService(t)
	body := []byte(`{"product_id": "` + productId + `", "destination_path": "gsiftp://dest.example.org/outbox"}`)
	req := withCert(httptest.NewRequest(http.MethodPost, "/api/v1/submitTransfer", bytes.NewReader(body)), "/O=Org/CN=alice")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, before+1, countInit())
}

func TestDoneStagingRejectsStaleCallback(t *testing.T) {
	newStatusRow(t, "svc-3", "/O=Org/CN=alice", string(transfer.StatusStagingDone))
	stager := &driver.StagerDriver{}
	s, err := New(stager, &driver.PrepareDriver{})
	assert.Nil(t, err)

	body := []byte(`{"transfer_id": "svc-3", "success": true, "stager_hostname": "host", "stager_path": "/path"}`)
	req := withCert(httptest.NewRequest(http.MethodPost, "/api/v1/doneStaging", bytes.NewReader(body)), "/O=Org/CN=stager")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDonePrepareRejectsUnauthorizedCaller(t *testing.T) {
	newStatusRow(t, "svc-4", "/O=Org/CN=alice", string(transfer.StatusPreparing))
	s := newTestService(t)

	body := []byte(`{"transfer_id": "svc-4", "success": true}`)
	req := withCert(httptest.NewRequest(http.MethodPost, "/api/v1/donePrepare", bytes.NewReader(body)), "/O=Org/CN=stager")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
