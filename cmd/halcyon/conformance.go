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

package main

import (
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halcyon-compute/halcyon/pkg/conformance"
	"github.com/halcyon-compute/halcyon/pkg/driver"
)

var (
	confSize     uint64
	confReserved bool
	confSocket   string
	adminAddr    string
)

var conformanceCmd = &cobra.Command{
	Use:   "conformance",
	Short: "Run the inter-process memory-sharing conformance scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		if adminAddr != "" {
			serveAdmin(adminAddr)
		}
		cfg, err := conformance.LoadConfig()
		if err != nil {
			return err
		}
		cfg.Size = confSize
		cfg.Reserved = confReserved
		cfg.SocketPath = confSocket
		cfg.Log = log
		return conformance.Run(cfg)
	},
}

// roleCmd builds an explicit role entrypoint, for driving the sender or
// receiver directly instead of through the parent's re-exec.
func roleCmd(name string, run func(conformance.Config) error) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: "Run the " + name + " role in this process",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := conformance.LoadConfig()
			if err != nil {
				return err
			}
			cfg.Size = confSize
			cfg.Reserved = confReserved
			cfg.SocketPath = confSocket
			cfg.Log = log
			return run(cfg)
		},
	}
}

// serveAdmin exposes liveness/readiness while a run is in flight. Readiness
// requires the driver to open with at least two devices, the same condition
// the scenario itself skips on.
func serveAdmin(addr string) {
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(200))
	health.AddReadinessCheck("devices", func() error {
		drv, err := driver.Open(driver.WithLogger(log))
		if err != nil {
			return err
		}
		defer func() { _ = drv.Close() }()
		if drv.DeviceCount() < 2 {
			return conformance.ErrNotEnoughDevices
		}
		return nil
	})
	go func() {
		if err := http.ListenAndServe(addr, health); err != nil {
			log.Warn("admin listener stopped", zap.Error(err))
		}
	}()
}

func init() {
	conformanceCmd.PersistentFlags().Uint64Var(&confSize, "size", 4096, "shared allocation size in bytes")
	conformanceCmd.PersistentFlags().BoolVar(&confReserved, "reserved", false, "use reserved physical memory in the sender")
	conformanceCmd.PersistentFlags().StringVar(&confSocket, "socket", "/tmp/halcyon_ipc.sock", "handle exchange socket path")
	conformanceCmd.Flags().StringVar(&adminAddr, "admin", "", "serve health checks on this address during the run")
	conformanceCmd.AddCommand(roleCmd("sender", conformance.Sender))
	conformanceCmd.AddCommand(roleCmd("receiver", conformance.Receiver))
	rootCmd.AddCommand(conformanceCmd)
}
