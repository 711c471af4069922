//go:build windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Windows errno definitions.
//

package netsim

import "golang.org/x/sys/windows"

const (
	// EBADF is the bad file descriptor error, returned when an operation
	// is attempted on a socket that isn't open.
	EBADF = windows.WSAEBADF

	// ENOTCONN is the not-connected error.
	ENOTCONN = windows.WSAENOTCONN

	// EAFNOSUPPORT is the address family not supported error.
	EAFNOSUPPORT = windows.WSAEAFNOSUPPORT

	// EADDRNOTAVAIL is the address not available error.
	EADDRNOTAVAIL = windows.WSAEADDRNOTAVAIL

	// EADDRINUSE is the address in use error.
	EADDRINUSE = windows.WSAEADDRINUSE

	// EAGAIN is the resource-temporarily-unavailable ("would block") error.
	EAGAIN = windows.WSAEWOULDBLOCK

	// ECONNREFUSED is the connection refused error.
	ECONNREFUSED = windows.WSAECONNREFUSED

	// ECONNRESET is the connection reset by peer error.
	ECONNRESET = windows.WSAECONNRESET

	// ECONNABORTED is the connection aborted error.
	ECONNABORTED = windows.WSAECONNABORTED

	// EHOSTUNREACH is the host unreachable error.
	EHOSTUNREACH = windows.WSAEHOSTUNREACH

	// EINVAL is the invalid argument error.
	EINVAL = windows.WSAEINVAL

	// ENETDOWN is the network is down error.
	ENETDOWN = windows.WSAENETDOWN

	// ENOBUFS is the no buffer space available error.
	ENOBUFS = windows.WSAENOBUFS

	// EPROTONOSUPPORT is the protocol not supported error.
	EPROTONOSUPPORT = windows.WSAEPROTONOSUPPORT

	// ECANCELED is the operation-canceled error, used to back
	// [OperationAborted].
	ECANCELED = windows.ERROR_OPERATION_ABORTED
)

func ecanceled() error { return ECANCELED }
