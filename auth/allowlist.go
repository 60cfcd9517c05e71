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

// AllowList gates access by exact DN match. It is built once from
// configuration at startup and never mutated afterward, so it requires no
// locking despite being read concurrently by every request goroutine.
type AllowList struct {
	dns map[string]bool
}

// NewAllowList builds an AllowList from a slice of permitted DNs.
func NewAllowList(dns []string) AllowList {
	a := AllowList{dns: make(map[string]bool, len(dns))}
	for _, dn := range dns {
		a.dns[dn] = true
	}
	return a
}

// Check returns nil if dn is on the list, else an UnauthorizedDNError.
func (a AllowList) Check(dn string) error {
	if a.dns[dn] {
		return nil
	}
	return UnauthorizedDNError{DN: dn}
}
