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
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/halcyon-compute/halcyon/pkg/driver"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Enumerate compute devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, err := driver.Open(driver.WithLogger(log))
		if err != nil {
			return err
		}
		defer func() { _ = drv.Close() }()

		devices := drv.Devices()
		// Enumeration order is unspecified; sort for display only.
		sort.Slice(devices, func(i, j int) bool {
			return devices[i].Properties().Ordinal < devices[j].Properties().Ordinal
		})

		table := tablewriter.NewTable(os.Stdout)
		table.Header([]string{"ORDINAL", "NAME", "UUID", "MEMORY"})
		for _, dev := range devices {
			p := dev.Properties()
			table.Append([]string{
				strconv.Itoa(p.Ordinal),
				p.Name,
				p.UUID.String(),
				humanBytes(p.TotalMemory),
			})
		}
		table.Render()
		return nil
	},
}

func humanBytes(n uint64) string {
	val := float64(n)
	units := []string{"B", "KiB", "MiB", "GiB"}
	i := 0
	for val >= 1024 && i < len(units)-1 {
		val /= 1024
		i++
	}
	return fmt.Sprintf("%.0f %s", val, units[i])
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
