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

package auth

import (
	"crypto/tls"
	"crypto/x509/pkix"
	"fmt"
	"strings"
)

// the OID Globus proxy certificates carry in their proxyCertInfo extension
var proxyCertInfoOID = []int{1, 3, 6, 1, 4, 1, 3536, 1, 222}

// indicates that the peer presented no certificate at all
type NoCertificateError struct{}

func (e NoCertificateError) Error() string {
	return "no client certificate was presented"
}

// PeerDN returns the effective distinguished name of the client certificate
// presented on conn, in the form /K=V/K=V/.... If the leading certificate
// carries a proxyCertInfo extension, the DN is taken from the issuer one
// level up the chain (the proxy's signer); otherwise it is the leading
// certificate's own subject. This mirrors the one-level proxy walk in
// util.py's _get_base_name.
func PeerDN(state tls.ConnectionState) (string, error) {
	if len(state.PeerCertificates) == 0 {
		return "", NoCertificateError{}
	}
	leaf := state.PeerCertificates[0]
	for _, ext := range leaf.Extensions {
		if ext.Id.Equal(proxyCertInfoOID) {
			if len(state.PeerCertificates) < 2 {
				// a lone proxy cert with no issuer in the chain: fall back
				// to its own subject rather than fail the connection
				break
			}
			return formatDN(state.PeerCertificates[1].Subject), nil
		}
	}
	return formatDN(leaf.Subject), nil
}

// formatDN renders a pkix.Name as one '/K=V' component per value, taken from
// pkix.Name's typed fields in a fixed order (country, state/province,
// locality, organization, organizational unit, common name) rather than in
// the certificate's RDN order. Attributes outside these fields are not
// rendered.
func formatDN(name pkix.Name) string {
	var b strings.Builder
	appendComponents := func(key string, values []string) {
		for _, v := range values {
			fmt.Fprintf(&b, "/%s=%s", key, v)
		}
	}
	appendComponents("C", name.Country)
	appendComponents("ST", name.Province)
	appendComponents("L", name.Locality)
	appendComponents("O", name.Organization)
	appendComponents("OU", name.OrganizationalUnit)
	if name.CommonName != "" {
		fmt.Fprintf(&b, "/CN=%s", name.CommonName)
	}
	return b.String()
}
