package main

import (
	"bytes"
	"os"
	"testing"
)

// resetFlags restores every flag variable to its zero value.
func resetFlags() {
	verbose, quiet, jsonOut = false, false, false
	arenaSize, noCompaction, heapMemory, memoryLimit, staleCheck, logLevel = 0, false, false, 0, false, ""

	stressOps, stressWorkers, stressSeed, stressMaxSize = 2000, 1, 1, 512
	stressFreeRatio = 0.45
	stressReport, stressCodec, stressCompress, stressMetrics = "", "go-json", "none", false

	layoutRecords = false
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	// Drain concurrently so large outputs cannot fill the pipe.
	done := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		done <- buf.Bytes()
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout

	return string(<-done), fnErr
}
