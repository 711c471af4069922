//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// UNIX errno definitions.
//

package netsim

import "golang.org/x/sys/unix"

const (
	// EBADF is the bad file descriptor error, returned when an operation
	// is attempted on a socket that isn't open.
	EBADF = unix.EBADF

	// ENOTCONN is the not-connected error.
	ENOTCONN = unix.ENOTCONN

	// EAFNOSUPPORT is the address family not supported error.
	EAFNOSUPPORT = unix.EAFNOSUPPORT

	// EADDRNOTAVAIL is the address not available error.
	EADDRNOTAVAIL = unix.EADDRNOTAVAIL

	// EADDRINUSE is the address in use error.
	EADDRINUSE = unix.EADDRINUSE

	// EAGAIN is the resource-temporarily-unavailable ("would block") error.
	EAGAIN = unix.EAGAIN

	// ECONNREFUSED is the connection refused error.
	ECONNREFUSED = unix.ECONNREFUSED

	// ECONNRESET is the connection reset by peer error.
	ECONNRESET = unix.ECONNRESET

	// ECONNABORTED is the connection aborted error.
	ECONNABORTED = unix.ECONNABORTED

	// EHOSTUNREACH is the host unreachable error.
	EHOSTUNREACH = unix.EHOSTUNREACH

	// EINVAL is the invalid argument error.
	EINVAL = unix.EINVAL

	// ENETDOWN is the network is down error.
	ENETDOWN = unix.ENETDOWN

	// ENOBUFS is the no buffer space available error.
	ENOBUFS = unix.ENOBUFS

	// EPROTONOSUPPORT is the protocol not supported error.
	EPROTONOSUPPORT = unix.EPROTONOSUPPORT

	// ECANCELED is the operation-canceled error, used to back
	// [OperationAborted].
	ECANCELED = unix.ECANCELED
)

func ecanceled() error { return ECANCELED }
