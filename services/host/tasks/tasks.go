// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tasks runs long-lived work in the background behind a
// uniform record lifecycle. Every public entry point that cannot
// finish within one HTTP exchange allocates a record here, launches
// the work and returns the execution id; a status endpoint reads the
// record back later.
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/DeviceLab/pkg/logging"
)

// Record statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// callbackTimeout bounds the completion POST to the server.
const callbackTimeout = 30 * time.Second

// ErrTaskNotFound is returned when no record exists for an id.
var ErrTaskNotFound = errors.New("tasks: task not found")

// Record is the externally visible state of one background task.
type Record struct {
	ExecutionID string    `json:"execution_id"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message,omitempty"`
	Result      any       `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time,omitempty"`
}

// Terminal reports whether the record will not change again.
func (r *Record) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusError
}

// Work is the body of a background task. It returns the result to
// store on the record, or an error.
type Work func(ctx context.Context, update func(progress int, message string)) (any, error)

// Runner owns the record map and the completion callback client.
//
// Thread Safety:
//
//	Safe for concurrent use; the mutex guards the record map and every
//	record mutation happens under it.
type Runner struct {
	mu      sync.Mutex
	records map[string]*Record

	log         *logging.Logger
	callbackURL string
	client      *http.Client

	// OnCallback, when set, observes every callback delivery attempt.
	// Set before serving traffic; reads are unsynchronized.
	OnCallback func(delivered bool)
}

// NewRunner creates a Runner. callbackURL is the server endpoint that
// receives task completions; empty disables callbacks.
func NewRunner(log *logging.Logger, callbackURL string) *Runner {
	return &Runner{
		records:     make(map[string]*Record),
		log:         log,
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: callbackTimeout},
	}
}

// Launch allocates an execution id, records the running state and
// starts the work in the background. taskID, when non-empty, triggers
// the server callback on completion.
func (r *Runner) Launch(ctx context.Context, message, taskID string, work Work) string {
	executionID := uuid.NewString()

	r.mu.Lock()
	r.records[executionID] = &Record{
		ExecutionID: executionID,
		Status:      StatusRunning,
		Message:     message,
		StartTime:   time.Now(),
	}
	r.mu.Unlock()

	// The background task outlives the HTTP request; detach from the
	// caller's cancellation.
	bg := context.WithoutCancel(ctx)
	go r.run(bg, executionID, taskID, work)

	return executionID
}

func (r *Runner) run(ctx context.Context, executionID, taskID string, work Work) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("task panicked: %v", rec)
			r.finish(ctx, executionID, taskID, nil, err)
		}
	}()

	update := func(progress int, message string) {
		r.mu.Lock()
		if record, ok := r.records[executionID]; ok && !record.Terminal() {
			record.Progress = progress
			if message != "" {
				record.Message = message
			}
		}
		r.mu.Unlock()
	}

	result, err := work(ctx, update)
	r.finish(ctx, executionID, taskID, result, err)
}

func (r *Runner) finish(ctx context.Context, executionID, taskID string, result any, err error) {
	r.mu.Lock()
	record, ok := r.records[executionID]
	if ok {
		record.Progress = 100
		record.EndTime = time.Now()
		if err != nil {
			record.Status = StatusError
			record.Error = err.Error()
		} else {
			record.Status = StatusCompleted
			record.Result = result
		}
	}
	r.mu.Unlock()

	if err != nil {
		r.log.Error("background task failed",
			"execution_id", executionID, "error", err)
	} else {
		r.log.Info("background task completed", "execution_id", executionID)
	}

	if taskID != "" {
		r.postCallback(ctx, taskID, result, err)
	}
}

// postCallback notifies the server that a task finished. Failures are
// logged only; the local record is already final.
func (r *Runner) postCallback(ctx context.Context, taskID string, result any, taskErr error) {
	if r.callbackURL == "" {
		return
	}
	payload := map[string]any{"task_id": taskID}
	if taskErr != nil {
		payload["error"] = taskErr.Error()
	} else {
		payload["result"] = result
	}
	body, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("callback payload marshal failed", "task_id", taskID, "error", err)
		r.observeCallback(false)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, callbackTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.callbackURL, bytes.NewReader(body))
	if err != nil {
		r.log.Error("callback request build failed", "task_id", taskID, "error", err)
		r.observeCallback(false)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Error("callback delivery failed", "task_id", taskID, "error", err)
		r.observeCallback(false)
		return
	}
	defer resp.Body.Close()
	// The reply body is not part of the contract; drain and drop it.
	io.Copy(io.Discard, resp.Body)
	r.log.Info("callback delivered", "task_id", taskID, "status", resp.StatusCode)
	r.observeCallback(resp.StatusCode < http.StatusBadRequest)
}

func (r *Runner) observeCallback(delivered bool) {
	if r.OnCallback != nil {
		r.OnCallback(delivered)
	}
}

// Get returns a copy of the record for an execution id.
func (r *Runner) Get(executionID string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[executionID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	copied := *record
	return &copied, nil
}

// Prune drops terminal records older than maxAge and returns how many
// were removed.
func (r *Runner) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, record := range r.records {
		if record.Terminal() && record.EndTime.Before(cutoff) {
			delete(r.records, id)
			removed++
		}
	}
	return removed
}
