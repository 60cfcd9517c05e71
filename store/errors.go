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

import "fmt"

// indicates that the store is not open and cannot respond to the given
// request
type NotOpenError struct{}

func (e NotOpenError) Error() string {
	return "the transfer store is not open for reading or writing"
}

// indicates that the store's database file cannot be opened
type CantOpenError struct {
	Message string
}

func (e CantOpenError) Error() string {
	return fmt.Sprintf("can't open transfer store: %s", e.Message)
}

// indicates that no row exists with the given transfer id
type NotFoundError struct {
	TransferId string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("no transfer found with id %s", e.TransferId)
}

// indicates that a transition was attempted on a row whose status no longer
// matches the expected prior state; the caller lost a race with another
// writer and must not treat this as fatal
type StaleStatusError struct {
	TransferId, Expected string
}

func (e StaleStatusError) Error() string {
	return fmt.Sprintf("transfer %s is no longer in status %s", e.TransferId, e.Expected)
}

// indicates a low-level failure reading or writing a transfer row
type StoreError struct {
	TransferId string
	Message    string
}

func (e StoreError) Error() string {
	if e.TransferId == "" {
		return fmt.Sprintf("store error: %s", e.Message)
	}
	return fmt.Sprintf("store error for transfer %s: %s", e.TransferId, e.Message)
}
