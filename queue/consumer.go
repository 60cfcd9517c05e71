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

import (
	"log/slog"
)

// Handler processes a dequeued transfer id. A nil return acks the message; a
// non-nil return nacks it without requeue, since every driver's handler
// reads current state from the store before acting and a failure here means
// the driver itself hit an error recorded on the row, not a transient
// delivery problem.
type Handler func(transferId string) error

// Consume opens its own channel on the shared connection, sets prefetch to
// 1 so a single slow delivery can't starve the rest of the queue, and runs
// handler for each delivery until ctx-independent Finalize is called (the
// channel closes and Consume returns).
func Consume(queueName string, handler Handler) error {
	if conn_ == nil {
		return &NotOpenError{}
	}
	ch, err := conn_.Channel()
	if err != nil {
		return &ConnectError{Message: err.Error()}
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return &ConnectError{Message: err.Error()}
	}

	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return &ConnectError{Message: err.Error()}
	}

	for d := range deliveries {
		transferId := string(d.Body)
		if err := handler(transferId); err != nil {
			slog.Error("driver handler failed", "queue", queueName, "transfer_id", transferId, "error", err)
			d.Nack(false, false)
			continue
		}
		d.Ack(false)
	}
	return nil
}
