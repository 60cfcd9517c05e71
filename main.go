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

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbase/dts-orchestrator/config"
	"github.com/kbase/dts-orchestrator/driver"
	"github.com/kbase/dts-orchestrator/fts"
	"github.com/kbase/dts-orchestrator/journal"
	"github.com/kbase/dts-orchestrator/queue"
	"github.com/kbase/dts-orchestrator/service"
	"github.com/kbase/dts-orchestrator/store"
)

// prints usage info
func usage() {
	fmt.Fprintf(os.Stderr, "%s: usage:\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "%s <config_file>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "See config/config.go for the sections of a config file.\n")
	os.Exit(1)
}

func enableLogging() {
	logLevel := new(slog.LevelVar)
	if config.Service.Debug {
		logLevel.Set(slog.LevelDebug)
	} else {
		logLevel.Set(slog.LevelInfo)
	}
	handler := slog.NewJSONHandler(os.Stdout,
		&slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Debug logging enabled.")
}

// callbackURL builds the externally-reachable URL for one of this process's
// completion-callback routes, at the hostname the stager/agent are
// configured to reach this orchestrator at.
func callbackURL(path string) string {
	return fmt.Sprintf("https://%s:%d/api/v1/%s", config.Service.CallbackHost, config.Service.Port, path)
}

func main() {

	// the only argument is the configuration filename
	if len(os.Args) < 2 {
		usage()
	}
	configFile := os.Args[1]

	// read the configuration file and initialize the config package
	log.Printf("Reading configuration from '%s'...\n", configFile)
	file, err := os.Open(configFile)
	if err != nil {
		log.Panicf("Couldn't open %s: %s\n", configFile, err.Error())
	}
	defer file.Close()
	b, err := io.ReadAll(file)
	if err != nil {
		log.Panicf("Couldn't read configuration data: %s\n", err.Error())
	}
	if err := config.Init(b); err != nil {
		log.Panicf("Couldn't initialize the configuration: %s\n", err.Error())
	}

	enableLogging()

	if err := store.Init(); err != nil {
		log.Panicf("Couldn't open the transfers store: %s\n", err.Error())
	}
	defer store.Finalize()

	if err := journal.Init(); err != nil {
		log.Panicf("Couldn't open the transfer journal: %s\n", err.Error())
	}
	defer journal.Finalize()

	if err := queue.Init(); err != nil {
		log.Panicf("Couldn't connect to the message queue: %s\n", err.Error())
	}
	defer queue.Finalize()

	if err := fts.Init(); err != nil {
		log.Panicf("Couldn't initialize the FTS client: %s\n", err.Error())
	}

	stagerDriver, err := driver.NewStagerDriver(callbackURL("doneStaging"))
	if err != nil {
		log.Panicf("Couldn't create the stager driver: %s\n", err.Error())
	}
	prepareDriver, err := driver.NewPrepareDriver(callbackURL("donePrepare"))
	if err != nil {
		log.Panicf("Couldn't create the prepare driver: %s\n", err.Error())
	}
	ftsDriver, err := driver.NewFTSDriver()
	if err != nil {
		log.Panicf("Couldn't create the FTS driver: %s\n", err.Error())
	}
	poller := driver.NewFTSPoller(ftsDriver)

	// each driver dequeues on its own goroutine; queue.Consume logs and
	// nacks a failed delivery rather than propagating it, so a Run only
	// returns once the broker connection itself goes away
	go func() {
		if err := stagerDriver.Run(); err != nil {
			slog.Error("stager driver stopped", "error", err)
		}
	}()
	go func() {
		if err := prepareDriver.Run(); err != nil {
			slog.Error("prepare driver stopped", "error", err)
		}
	}()
	go func() {
		if err := ftsDriver.Run(); err != nil {
			slog.Error("FTS driver stopped", "error", err)
		}
	}()
	go poller.Run()
	defer poller.Stop()

	svc, err := service.New(stagerDriver, prepareDriver)
	if err != nil {
		log.Panicf("Couldn't create the service: %s\n", err.Error())
	}

	// intercept the SIGINT, SIGHUP, SIGTERM, and SIGQUIT signals so we can shut
	// down the service gracefully if they are encountered
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	// start the service in a goroutine so it doesn't block
	go func() {
		err = svc.Start(config.Service.Port)
		if err != nil { // on error, log the error message and issue a SIGINT
			log.Println(err.Error())
			thisProcess, _ := os.FindProcess(os.Getpid())
			thisProcess.Signal(os.Interrupt)
		}
	}()

	// block till we receive one of the above signals
	<-sigChan

	// create a deadline to wait for
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// wait for connections to close until the deadline elapses
	svc.Shutdown(ctx)
	log.Println("Shutting down")
	os.Exit(0)
}
