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

package queue

import "fmt"

// indicates that the queue connection or channel could not be opened
type ConnectError struct {
	Message string
}

func (e ConnectError) Error() string {
	return fmt.Sprintf("can't connect to message broker: %s", e.Message)
}

// indicates that Publish or Consume was called before Init
type NotOpenError struct{}

func (e NotOpenError) Error() string {
	return "the queue connection is not open"
}

// indicates that a message could not be published
type PublishError struct {
	TransferId, Queue, Message string
}

func (e PublishError) Error() string {
	return fmt.Sprintf("can't publish transfer %s to queue %s: %s", e.TransferId, e.Queue, e.Message)
}
