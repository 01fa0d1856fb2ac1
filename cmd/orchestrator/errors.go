package main

import "errors"

var (
	errAlreadyRunning  = errors.New("orchestrator: already running")
	errShutdownTimeout = errors.New("orchestrator: graceful shutdown timed out")
)

func isAlreadyRunning(err error) bool  { return errors.Is(err, errAlreadyRunning) }
func isShutdownTimeout(err error) bool { return errors.Is(err, errShutdownTimeout) }
