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

import "fmt"

// indicates that a submitted specification fails validation
type InvalidSpecificationError struct {
	Reason string
}

func (e InvalidSpecificationError) Error() string {
	return fmt.Sprintf("invalid transfer specification: %s", e.Reason)
}

// indicates that the DN presented to read a transfer's status isn't the one
// that submitted it
type NotSubmitterError struct {
	TransferId string
}

func (e NotSubmitterError) Error() string {
	return fmt.Sprintf("the requesting identity did not submit transfer %s", e.TransferId)
}

// indicates that a completion callback arrived for a transfer whose status
// is no longer the one the callback expects; the caller must not release its
// concurrency slot a second time
type UnexpectedStatusError struct {
	TransferId, Expected, Actual string
}

func (e UnexpectedStatusError) Error() string {
	return fmt.Sprintf("transfer %s expected status %s but found %s",
		e.TransferId, e.Expected, e.Actual)
}
