// Package dbus holds the wire-level constants and path helpers shared by
// the service, collection, item, and session objects: interface names,
// the well-known bus name, and the object path layout of the
// org.freedesktop.Secret API.
package dbus

import (
	"github.com/godbus/dbus/v5"
)

// Secret represents a secret as transferred over D-Bus.
// Wire signature: (oayays) - session path, parameters, value, content-type.
type Secret struct {
	Session     dbus.ObjectPath
	Parameters  []byte
	Value       []byte
	ContentType string
}

// SecretContentType is the content-type this implementation always reports
// on a Secret it returns (GetSecret, GetSecrets). The incoming content-type
// on CreateItem/SetSecret is accepted but not stored or echoed back.
const SecretContentType = "text/plain; charset=utf8"

// Interface names for the Secret Service API.
const (
	SecretServiceInterface = "org.freedesktop.Secret.Service"
	CollectionInterface    = "org.freedesktop.Secret.Collection"
	ItemInterface          = "org.freedesktop.Secret.Item"
	SessionInterface       = "org.freedesktop.Secret.Session"
)

// DefaultServiceName is the well-known D-Bus name for the Secret Service.
// A deployment may override it via configuration (see internal/config).
const DefaultServiceName = "org.freedesktop.secrets"

// ServicePath is the object path for the Secret Service singleton.
const ServicePath = dbus.ObjectPath("/org/freedesktop/secrets")

// CollectionBasePath is the base path under which collections are registered.
const CollectionBasePath = "/org/freedesktop/secrets/collection"

// SessionBasePath is the base path under which sessions are registered.
const SessionBasePath = "/org/freedesktop/secrets/session"

// AliasBasePath is the base path for collection aliases. Only the
// "default" alias has a second, fixed registration point per spec; other
// aliases live only in the service's alias map.
const AliasBasePath = "/org/freedesktop/secrets/aliases"

// DefaultAliasName is the distinguished alias whose collection is also
// reachable at the fixed DefaultCollectionPath.
const DefaultAliasName = "default"

// DefaultCollectionPath is the fixed path of the collection aliased "default".
const DefaultCollectionPath = dbus.ObjectPath(AliasBasePath + "/" + DefaultAliasName)

// NoPrompt is the sentinel path returned wherever the API allows an
// interactive prompt. This implementation never prompts.
const NoPrompt = dbus.ObjectPath("/")

// Algorithm names accepted by Service.OpenSession.
const (
	AlgorithmPlain = "plain"
	AlgorithmDH    = "dh-ietf1024-sha256-aes128-cbc-pkcs7"
)
