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

package harness

import (
	"errors"
	"os"
	"os/exec"
)

// RoleEnv selects a process role when the binary re-executes itself. Go has
// no fork, so the process tree is built by re-exec: the parent spawns the
// sender, the sender spawns the receiver.
const RoleEnv = "HALCYON_TEST_ROLE"

// Role returns the role this process was spawned for, or empty for the
// parent.
func Role() string {
	return os.Getenv(RoleEnv)
}

// InRole reports whether this process runs the given role.
func InRole(role string) bool {
	return Role() == role
}

// SpawnSelf re-executes the current binary in the given role. The child
// inherits the environment plus the role variable and any extras
// ("KEY=value"), and shares the parent's stdout/stderr so failures surface
// in the suite output.
func SpawnSelf(role string, extraEnv ...string) *exec.Cmd {
	cmd := exec.Command(os.Args[0])
	cmd.Env = append(os.Environ(), RoleEnv+"="+role)
	cmd.Env = append(cmd.Env, extraEnv...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// ExitCode extracts the exit status of a finished subprocess; -1 means the
// process did not exit normally.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
