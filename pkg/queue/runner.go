/*
 * Copyright 2026 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package queue drains one device's command queue: strict FIFO, one
// command in flight, bounded retries, emergency preemption.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/carverauto/robotlink/pkg/bus"
	"github.com/carverauto/robotlink/pkg/logger"
	"github.com/carverauto/robotlink/pkg/models"
	"github.com/carverauto/robotlink/pkg/protocol"
)

// maxCommandAttempts bounds delivery attempts per command. A command
// failing this many times is dropped without blocking the queue.
const maxCommandAttempts = 3

var ErrQueueClosed = errors.New("command queue closed")

// Executor delivers one translated envelope and blocks until the
// robot responds. A nil return means the robot reported success.
type Executor interface {
	Execute(ctx context.Context, env *models.CommandEnvelope) error
}

// Runner owns one device's pending commands and drains them
// sequentially on its own goroutine.
type Runner struct {
	deviceID   string
	translator protocol.Translator
	executor   Executor
	events     *bus.Bus
	timeout    time.Duration
	logger     logger.Logger

	mu        sync.Mutex
	pending   []*models.RobotCommand
	closed    bool
	active    bool
	inflight  context.CancelFunc
	preempted bool

	wake chan struct{}
	done chan struct{}

	sent      int
	succeeded int
}

func NewRunner(
	deviceID string,
	translator protocol.Translator,
	executor Executor,
	events *bus.Bus,
	commandTimeout time.Duration,
	log logger.Logger,
) *Runner {
	return &Runner{
		deviceID:   deviceID,
		translator: translator,
		executor:   executor,
		events:     events,
		timeout:    commandTimeout,
		logger:     log,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Start launches the drain loop. It exits when ctx is cancelled; the
// queue rejects new commands from then on.
func (r *Runner) Start(ctx context.Context) {
	go r.run(ctx)
}

// Enqueue appends a command in FIFO position.
func (r *Runner) Enqueue(cmd *models.RobotCommand) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()

		return ErrQueueClosed
	}

	r.pending = append(r.pending, cmd)
	r.mu.Unlock()

	r.events.Publish(r.deviceID, models.EventCommandQueued, &models.CommandResultPayload{Command: cmd})
	r.signal()

	return nil
}

// Preempt clears every pending command, cancels the one in flight, and
// makes cmd the sole queue entry.
func (r *Runner) Preempt(cmd *models.RobotCommand) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()

		return ErrQueueClosed
	}

	dropped := len(r.pending)
	r.pending = []*models.RobotCommand{cmd}

	if r.inflight != nil {
		r.preempted = true
		// The cancelled command no longer counts as outstanding.
		r.active = false
		r.inflight()
	}

	r.mu.Unlock()

	r.logger.Warn().
		Str("device_id", r.deviceID).
		Int("dropped", dropped).
		Msg("queue preempted")

	r.signal()

	return nil
}

// Len reports the number of outstanding commands, including the one
// currently in flight.
func (r *Runner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.pending)
	if r.active {
		n++
	}

	return n
}

// Stats returns total commands sent and how many succeeded.
func (r *Runner) Stats() (sent, succeeded int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sent, r.succeeded
}

// Done is closed once the drain loop has exited.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) run(ctx context.Context) {
	defer close(r.done)

	for {
		cmd := r.pop()
		if cmd == nil {
			select {
			case <-ctx.Done():
				r.close()

				return
			case <-r.wake:
				continue
			}
		}

		select {
		case <-ctx.Done():
			r.close()

			return
		default:
		}

		r.deliver(ctx, cmd)

		r.mu.Lock()
		r.active = false
		r.mu.Unlock()
	}
}

func (r *Runner) pop() *models.RobotCommand {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == 0 {
		return nil
	}

	cmd := r.pending[0]
	r.pending = r.pending[1:]
	r.active = true

	return cmd
}

// requeueFront puts a failed command back at the head so its retry
// stays ahead of later submissions.
func (r *Runner) requeueFront(cmd *models.RobotCommand) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.pending = append([]*models.RobotCommand{cmd}, r.pending...)
}

func (r *Runner) close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.pending = nil
}

func (r *Runner) deliver(ctx context.Context, cmd *models.RobotCommand) {
	wire, err := r.translator.TranslateCommand(cmd)
	if err != nil {
		// Translation failures are permanent; retrying cannot help.
		r.logger.Error().Err(err).
			Str("device_id", r.deviceID).
			Str("command_id", cmd.ID).
			Msg("command translation failed, dropping")
		r.events.Publish(r.deviceID, models.EventCommandFailed, &models.CommandResultPayload{
			Command: cmd,
			Error:   err.Error(),
		})

		return
	}

	env := &models.CommandEnvelope{
		Type:      models.MessageTypeCommand,
		Command:   wire,
		Timestamp: time.Now(),
	}

	execCtx, cancel := context.WithTimeout(ctx, r.timeout)

	r.mu.Lock()
	r.inflight = cancel
	r.sent++
	r.mu.Unlock()

	err = r.executor.Execute(execCtx, env)

	r.mu.Lock()
	r.inflight = nil
	wasPreempted := r.preempted
	r.preempted = false
	r.mu.Unlock()

	cancel()

	if err != nil && wasPreempted {
		// The in-flight command lost to an emergency preemption; it
		// must not requeue ahead of the emergency stop.
		r.events.Publish(r.deviceID, models.EventCommandDropped, &models.CommandResultPayload{
			Command: cmd,
			Error:   "preempted by emergency stop",
		})

		return
	}

	if err == nil {
		r.mu.Lock()
		r.succeeded++
		r.mu.Unlock()

		r.events.Publish(r.deviceID, models.EventCommandCompleted, &models.CommandResultPayload{
			Command: cmd,
			Success: true,
		})

		return
	}

	cmd.Retries++

	if cmd.Retries >= maxCommandAttempts {
		r.logger.Warn().
			Str("device_id", r.deviceID).
			Str("command_id", cmd.ID).
			Int("attempts", cmd.Retries).
			Msg("command exhausted retries, dropping")
		r.events.Publish(r.deviceID, models.EventCommandDropped, &models.CommandResultPayload{
			Command: cmd,
			Error:   err.Error(),
		})

		return
	}

	r.logger.Debug().Err(err).
		Str("device_id", r.deviceID).
		Str("command_id", cmd.ID).
		Int("attempt", cmd.Retries).
		Msg("command attempt failed")
	r.events.Publish(r.deviceID, models.EventCommandFailed, &models.CommandResultPayload{
		Command: cmd,
		Error:   err.Error(),
	})
	r.requeueFront(cmd)
}
