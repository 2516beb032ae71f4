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

// Package ipcx moves exported memory handles between processes. The
// descriptor travels as SCM_RIGHTS ancillary data on a unix domain socket;
// a small fixed frame carries the handle metadata alongside it.
package ipcx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"

	"github.com/halcyon-compute/halcyon/pkg/driver"
)

// frameLen is the metadata frame: offset and size, little endian.
const frameLen = 16

var (
	// ErrShortFrame reports a truncated metadata frame.
	ErrShortFrame = errors.New("ipcx: short handle frame")
	// ErrNoDescriptor reports a frame that arrived without SCM_RIGHTS data.
	ErrNoDescriptor = errors.New("ipcx: no descriptor in control message")
)

// DefaultSocketPath is where conformance roles exchange handles unless
// overridden.
var DefaultSocketPath = "/tmp/halcyon_ipc.sock"

// Listener accepts handle-exchange connections.
type Listener struct {
	ln   *net.UnixListener
	path string
}

// Listen binds a unix socket at path, removing any stale socket file first.
func Listen(path string) (*Listener, error) {
	safeRemoveSocket(path)
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("ipcx: listen %s: %w", path, err)
	}
	return &Listener{ln: ln, path: path}, nil
}

// Accept waits for one peer.
func (l *Listener) Accept() (*Conn, error) {
	conn, err := l.ln.AcceptUnix()
	if err != nil {
		return nil, fmt.Errorf("ipcx: accept: %w", err)
	}
	return &Conn{uc: conn}, nil
}

// Close closes the listener and removes the socket file.
func (l *Listener) Close() error {
	err := l.ln.Close()
	safeRemoveSocket(l.path)
	return err
}

// Conn is one handle-exchange connection.
type Conn struct {
	uc *net.UnixConn
}

// Dial connects to the exchange socket, retrying with constant backoff until
// the listener appears. This is the ordering mechanism between sender and
// receiver: the receiver simply blocks here until the sender is serving.
func Dial(path string) (*Conn, error) {
	var conn *net.UnixConn
	op := func() error {
		c, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(50*time.Millisecond), 200)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("ipcx: dial %s: %w", path, err)
	}
	return &Conn{uc: conn}, nil
}

// SendHandle transmits a handle; the descriptor goes in ancillary data. The
// handle's descriptor remains owned by the caller.
func (c *Conn) SendHandle(h driver.IPCHandle) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var frame [frameLen]byte
	binary.LittleEndian.PutUint64(frame[0:8], h.Offset)
	binary.LittleEndian.PutUint64(frame[8:16], h.Size)
	_, _ = buf.Write(frame[:])

	rights := unix.UnixRights(h.Fd)
	if _, _, err := c.uc.WriteMsgUnix(buf.Bytes(), rights, nil); err != nil {
		return fmt.Errorf("ipcx: send handle: %w", err)
	}
	return nil
}

// RecvHandle receives a handle. The returned handle owns the received
// descriptor.
func (c *Conn) RecvHandle() (driver.IPCHandle, error) {
	frame := make([]byte, frameLen)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := c.uc.ReadMsgUnix(frame, oob)
	if err != nil {
		return driver.IPCHandle{}, fmt.Errorf("ipcx: recv handle: %w", err)
	}
	if n < frameLen {
		return driver.IPCHandle{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, n)
	}
	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil || len(scms) == 0 {
		return driver.IPCHandle{}, ErrNoDescriptor
	}
	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil || len(fds) != 1 {
		return driver.IPCHandle{}, ErrNoDescriptor
	}
	return driver.IPCHandle{
		Fd:     fds[0],
		Offset: binary.LittleEndian.Uint64(frame[0:8]),
		Size:   binary.LittleEndian.Uint64(frame[8:16]),
	}, nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.uc.Close()
}

// safeRemoveSocket removes a socket file, ignoring missing files.
func safeRemoveSocket(path string) bool {
	return os.Remove(path) == nil
}
