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

// Package conformance validates inter-process memory sharing across two
// devices. A sender process allocates device memory, fills it with a known
// pattern through a command queue, exports an IPC handle and serves it on a
// unix socket; a receiver process imports the handle on the other device,
// copies the memory to a host buffer and verifies the pattern byte for byte.
//
// The role logic lives here as a library so both the Go tests and the CLI
// runner drive the same code paths.
package conformance

import (
	"errors"
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/halcyon-compute/halcyon/internal/logging"
)

// Role names understood by RoleMain.
const (
	RoleSender   = "ipc-sender"
	RoleReceiver = "ipc-receiver"
)

// ErrNotEnoughDevices marks a run on a machine with fewer than two devices.
// It maps to a skip (exit 0), not a failure.
var ErrNotEnoughDevices = errors.New("conformance: fewer than 2 devices")

// minDevices is how many distinct devices the multi-device scenario needs.
const minDevices = 2

// Config parameterizes a conformance run. Every field is also settable
// through the environment, which is how the sender forwards its parameters
// to the receiver subprocess.
type Config struct {
	// Size of the shared allocation in bytes.
	Size uint64 `envconfig:"HALCYON_IPC_SIZE" default:"4096"`
	// Reserved switches the sender to the reserved-physical-memory path.
	Reserved bool `envconfig:"HALCYON_IPC_RESERVED" default:"false"`
	// SocketPath is the handle-exchange socket.
	SocketPath string `envconfig:"HALCYON_IPC_SOCKET" default:"/tmp/halcyon_ipc.sock"`

	Log *zap.Logger `ignored:"true"`
}

// LoadConfig reads a role configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("conformance: load config: %w", err)
	}
	return cfg, nil
}

func (c *Config) logger() *zap.Logger {
	if c.Log == nil {
		c.Log = logging.NewDefault("info")
	}
	return c.Log
}

// env renders the configuration as environment assignments for a spawned
// role.
func (c *Config) env() []string {
	reserved := "false"
	if c.Reserved {
		reserved = "true"
	}
	return []string{
		fmt.Sprintf("HALCYON_IPC_SIZE=%d", c.Size),
		"HALCYON_IPC_RESERVED=" + reserved,
		"HALCYON_IPC_SOCKET=" + c.SocketPath,
	}
}

// pattern is the fixture seed shared by sender and receiver.
const pattern int8 = 1
