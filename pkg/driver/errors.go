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

package driver

import "errors"

var (
	// ErrClosed reports use of a driver after Close.
	ErrClosed = errors.New("driver: closed")
	// ErrContextDestroyed reports use of a context after Destroy.
	ErrContextDestroyed = errors.New("driver: context destroyed")
	// ErrInvalidArgument reports a malformed size or alignment.
	ErrInvalidArgument = errors.New("driver: invalid argument")
	// ErrOutOfDeviceMemory reports that a device arena cannot satisfy an
	// allocation.
	ErrOutOfDeviceMemory = errors.New("driver: out of device memory")
	// ErrInvalidHandle reports an operation on a freed or foreign handle.
	ErrInvalidHandle = errors.New("driver: invalid handle")
	// ErrNotShareable reports an IPC export of memory that is not device
	// memory.
	ErrNotShareable = errors.New("driver: memory is not shareable")
	// ErrNotAddressable reports a Bytes call on device memory, which is
	// reachable only through command-list copies.
	ErrNotAddressable = errors.New("driver: device memory is not host addressable")
	// ErrListClosed reports an append to a closed command list.
	ErrListClosed = errors.New("driver: command list is closed")
	// ErrListNotClosed reports execution of a command list that was never
	// closed.
	ErrListNotClosed = errors.New("driver: command list is not closed")
	// ErrQueueDestroyed reports a submission to a destroyed command queue.
	ErrQueueDestroyed = errors.New("driver: command queue destroyed")
	// ErrAlreadyMapped reports a second MapPhysical of the same reservation.
	ErrAlreadyMapped = errors.New("driver: physical memory already mapped")
	// ErrNotMapped reports an unmap of a reservation that is not mapped.
	ErrNotMapped = errors.New("driver: physical memory not mapped")
)
