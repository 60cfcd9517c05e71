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

// Package service is the orchestrator's mutually-authenticated HTTPS front
// door: it accepts submitTransfer/transferStatus requests from data
// submitters and doneStaging/donePrepare completion callbacks from the
// stager and transfer-host agent, routing each to the transfer/driver
// packages once the caller's certificate DN clears the route's allow-list.
package service

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humamux"
	"github.com/gorilla/mux"
	"golang.org/x/net/netutil"

	"github.com/kbase/dts-orchestrator/auth"
	"github.com/kbase/dts-orchestrator/config"
	"github.com/kbase/dts-orchestrator/driver"
)

// Service is the orchestrator's HTTPS front end.
type Service struct {
	router   *mux.Router
	server   *http.Server
	listener net.Listener

	stager   *driver.StagerDriver
	preparer *driver.PrepareDriver

	submitters     auth.AllowList
	stagingCallers auth.AllowList
	prepareCallers auth.AllowList
}

// New builds a Service wired to the given drivers. stager handles the
// /doneStaging callback, preparer handles /donePrepare. The allow-lists
// consulted for each route come straight from config: submitters for
// /submitTransfer and /transferStatus, the staging/prepare stage's
// configured DN for their respective completion callbacks.
func New(stager *driver.StagerDriver, preparer *driver.PrepareDriver) (*Service, error) {
	s := &Service{
		stager:         stager,
		preparer:       preparer,
		submitters:     auth.NewAllowList(config.AllowedDNs.Submitters),
		stagingCallers: auth.NewAllowList([]string{config.Stages.Staging.DN}),
		prepareCallers: auth.NewAllowList([]string{config.Stages.Prepare.DN}),
	}
	s.router = mux.NewRouter()
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "resource not found", http.StatusNotFound)
	})

	api := s.router.PathPrefix("/api/v1").Subrouter()
	submit := api.PathPrefix("").Subrouter()
	submit.Use(s.authMiddleware(s.submitters))
	submitAPI := humamux.New(submit, huma.DefaultConfig("DTS Orchestrator", "1.0.0"))
	registerSubmitTransfer(submitAPI, s)
	registerTransferStatus(submitAPI, s)

	staging := api.PathPrefix("").Subrouter()
	staging.Use(s.authMiddleware(s.stagingCallers))
	stagingAPI := humamux.New(staging, huma.DefaultConfig("DTS Orchestrator", "1.0.0"))
	registerDoneStaging(stagingAPI, s)

	prepare := api.PathPrefix("").Subrouter()
	prepare.Use(s.authMiddleware(s.prepareCallers))
	prepareAPI := humamux.New(prepare, huma.DefaultConfig("DTS Orchestrator", "1.0.0"))
	registerDonePrepare(prepareAPI, s)

	return s, nil
}

// Start begins serving mutually-authenticated HTTPS on port, blocking until
// the listener is closed (by Shutdown or Close).
func (s *Service) Start(port int) error {
	certPool := x509.NewCertPool()
	caData, err := os.ReadFile(config.TLS.ClientCAFile)
	if err != nil {
		return fmt.Errorf("couldn't read tls.client_ca_file: %w", err)
	}
	if !certPool.AppendCertsFromPEM(caData) {
		return fmt.Errorf("tls.client_ca_file contains no usable certificates")
	}

	cert, err := tls.LoadX509KeyPair(config.TLS.CertFile, config.TLS.KeyFile)
	if err != nil {
		return fmt.Errorf("couldn't load tls.cert_file/tls.key_file: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    certPool,
	}

	listener, err := tls.Listen("tcp", fmt.Sprintf(":%d", port), tlsConfig)
	if err != nil {
		return err
	}
	s.listener = netutil.LimitListener(listener, config.Service.MaxConnections)

	s.server = &http.Server{Handler: s.router}
	return s.server.Serve(s.listener)
}

// Shutdown gracefully stops the service, waiting for active connections to
// finish until ctx's deadline elapses.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Close immediately releases the service's listener.
func (s *Service) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
}

// dnContextKey is the context key under which authMiddleware stores the
// caller's DN for handlers to retrieve.
type dnContextKey struct{}

// authMiddleware extracts the caller's certificate DN via auth.PeerDN,
// checks it against allowed, and stores it in the request context. A
// rejected DN never reaches the huma-registered handler.
func (s *Service) authMiddleware(allowed auth.AllowList) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS == nil {
				writeError(w, auth.NoCertificateError{}.Error(), http.StatusUnauthorized)
				return
			}
			dn, err := auth.PeerDN(*r.TLS)
			if err != nil {
				writeError(w, err.Error(), http.StatusUnauthorized)
				return
			}
			if err := allowed.Check(dn); err != nil {
				writeError(w, err.Error(), http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), dnContextKey{}, dn)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// callerDN retrieves the DN authMiddleware placed in ctx. Every handler in
// this package is reached only through authMiddleware, so this always
// succeeds; a missing value indicates a route that was wired up without the
// middleware, which is a programming error worth a clear panic rather than
// a silently-empty DN.
func callerDN(ctx context.Context) string {
	dn, ok := ctx.Value(dnContextKey{}).(string)
	if !ok {
		panic("service: handler invoked without authMiddleware in its route chain")
	}
	return dn
}
