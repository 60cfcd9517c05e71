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

// Package queue is a thin wrapper over the three durable AMQP queues
// (staging, prepare, transfer) the drivers use to hand transfer ids to one
// another. Messages carry only the transfer id; every driver re-reads the
// row it names from the store rather than trusting queue payload for
// anything else, so redelivery after a consumer crash is always safe to
// retry against current state.
package queue

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kbase/dts-orchestrator/config"
)

var conn_ *amqp.Connection
var publishChannel_ *amqp.Channel

// Init dials the broker named in config.Queue.URL and declares the three
// durable queues used by the drivers.
func Init() error {
	c, err := amqp.Dial(config.Queue.URL)
	if err != nil {
		return &ConnectError{Message: err.Error()}
	}
	ch, err := c.Channel()
	if err != nil {
		c.Close()
		return &ConnectError{Message: err.Error()}
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		c.Close()
		return &ConnectError{Message: err.Error()}
	}

	for _, name := range []string{config.Queue.StagingQueue, config.Queue.PrepareQueue, config.Queue.TransferQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			ch.Close()
			c.Close()
			return &ConnectError{Message: err.Error()}
		}
	}

	conn_ = c
	publishChannel_ = ch
	return nil
}

// Finalize closes the channel and connection opened by Init.
func Finalize() error {
	if publishChannel_ != nil {
		publishChannel_.Close()
		publishChannel_ = nil
	}
	if conn_ != nil {
		err := conn_.Close()
		conn_ = nil
		return err
	}
	return nil
}

// Publish sends transferId to queueName as a persistent message and blocks
// until the broker confirms receipt, per the publisher-confirms discipline
// the config stub's RabbitMQ section gestures at.
func Publish(queueName, transferId string) error {
	if publishChannel_ == nil {
		return &NotOpenError{}
	}
	confirmation, err := publishChannel_.PublishWithDeferredConfirmWithContext(
		context.Background(),
		"",
		queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "text/plain",
			DeliveryMode: amqp.Persistent,
			Body:         []byte(transferId),
		},
	)
	if err != nil {
		return &PublishError{TransferId: transferId, Queue: queueName, Message: err.Error()}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ok, err := confirmation.WaitContext(ctx)
	if err != nil {
		return &PublishError{TransferId: transferId, Queue: queueName, Message: err.Error()}
	}
	if !ok {
		return &PublishError{TransferId: transferId, Queue: queueName, Message: "broker did not ack the message"}
	}
	return nil
}
