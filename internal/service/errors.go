package service

import (
	"errors"

	"github.com/godbus/dbus/v5"
)

// errSessionClosed is returned internally by Session.Encrypt/Decrypt once
// the session has been closed; callers translate it to ErrSessionNotFound.
var errSessionClosed = errors.New("session is closed")

// D-Bus error names for the Secret Service API.
const (
	ErrNameAlgorithmUnsupported = "org.freedesktop.DBus.Error.NotSupported"
	ErrNameIsLocked             = "org.freedesktop.Secret.Error.IsLocked"
	ErrNameNoSession            = "org.freedesktop.Secret.Error.NoSession"
	ErrNameNoSuchObject         = "org.freedesktop.Secret.Error.NoSuchObject"
	ErrNameInvalidArgs          = "org.freedesktop.DBus.Error.InvalidArgs"
	ErrNameFailed               = "org.freedesktop.DBus.Error.Failed"
)

// NewDBusError creates a new D-Bus error with the given wire name and message.
func NewDBusError(name, message string) *dbus.Error {
	return &dbus.Error{
		Name: name,
		Body: []interface{}{message},
	}
}

// ErrAlgorithmUnsupported returns the error for an unsupported OpenSession algorithm.
func ErrAlgorithmUnsupported(msg string) *dbus.Error {
	return NewDBusError(ErrNameAlgorithmUnsupported, msg)
}

// ErrLocked returns the error for operating on a locked object where disallowed.
func ErrLocked(msg string) *dbus.Error {
	return NewDBusError(ErrNameIsLocked, msg)
}

// ErrSessionNotFound returns the error for a missing or closed session reference.
func ErrSessionNotFound(msg string) *dbus.Error {
	return NewDBusError(ErrNameNoSession, msg)
}

// ErrObjectNotFound returns the error for a missing item, collection, or alias.
func ErrObjectNotFound(msg string) *dbus.Error {
	return NewDBusError(ErrNameNoSuchObject, msg)
}

// ErrInvalidArgs returns the error for malformed crypto input or arguments.
func ErrInvalidArgs(msg string) *dbus.Error {
	return NewDBusError(ErrNameInvalidArgs, msg)
}

// ErrFailed is the catch-all error for anything not covered by a more
// specific wire error name.
func ErrFailed(msg string) *dbus.Error {
	return NewDBusError(ErrNameFailed, msg)
}
