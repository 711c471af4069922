//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Boundary error taxonomy (spec §7).
//

package netsim

import (
	"errors"
	"io"
)

// OperationAborted is returned to any pending read/write/connect/resolve
// handler cancelled by [*TCPSocket.Cancel], [*UDPSocket.Cancel],
// [*Resolver.Cancel], or a socket [Close]. On unix-like platforms this
// is backed by ECANCELED, the same code the kernel uses for an aborted
// io_uring/AIO operation.
var OperationAborted = ecanceled()

// ErrHostNotFound is returned by the resolver when the configuration's
// [Configuration.HostnameLookup] cannot resolve a name. POSIX has no
// single errno for this (getaddrinfo uses its own EAI_* space), so this
// is a plain sentinel rather than a syscall.Errno alias.
var ErrHostNotFound = errors.New("host not found")

// EOF is the error carried by a stream socket's final read completion
// after a clean close, aliasing [io.EOF] as spec §7 requires.
var EOF = io.EOF
