/*
 * Copyright 2026 Halcyon Authors
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

package conformance

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/halcyon-compute/halcyon/pkg/harness"
)

// Run drives a whole scenario from the parent: it spawns the sender role
// (which in turn spawns the receiver) and maps its exit status back to a
// pass, skip or failure.
func Run(cfg Config) error {
	log := cfg.logger()

	sender := harness.SpawnSelf(RoleSender, cfg.env()...)
	if err := sender.Start(); err != nil {
		return fmt.Errorf("conformance: spawn sender: %w", err)
	}
	waitErr := sender.Wait()
	code := harness.ExitCode(waitErr)
	switch {
	case code == 0:
		log.Info("conformance passed",
			zap.Uint64("size", cfg.Size),
			zap.Bool("reserved", cfg.Reserved))
		return nil
	case code > 0:
		return fmt.Errorf("conformance: sender exited %d", code)
	default:
		// The sender terminated abruptly (signal, spawn failure).
		return fmt.Errorf("conformance: sender terminated abnormally: %v", waitErr)
	}
}

// RoleMain dispatches sender/receiver roles when this process was spawned as
// one. It returns false in the parent; in a role process it never returns.
// Insufficient devices exit 0 — a skip, not a failure.
func RoleMain() bool {
	role := harness.Role()
	if role == "" {
		return false
	}

	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := cfg.logger()

	var runErr error
	switch role {
	case RoleSender:
		runErr = Sender(cfg)
	case RoleReceiver:
		runErr = Receiver(cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n", role)
		os.Exit(2)
	}

	if errors.Is(runErr, ErrNotEnoughDevices) {
		log.Warn("less than 2 devices, skipping", zap.String("role", role))
		os.Exit(0)
	}
	if runErr != nil {
		log.Error("role failed", zap.String("role", role), zap.Error(runErr))
		os.Exit(1)
	}
	os.Exit(0)
	return true
}
