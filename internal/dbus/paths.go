package dbus

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

// NewID returns a fresh 128-bit identifier rendered as 32 lowercase hex
// characters, used for collection, item, and session path segments.
func NewID() string {
	raw := uuid.New()
	return fmt.Sprintf("%x", raw[:])
}

// IsHex32 reports whether s is a 32-character lowercase hex string, the
// path-segment format mandated for collection, item, and session ids.
func IsHex32(s string) bool {
	if len(s) != 32 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// CollectionPath returns the D-Bus object path for a collection id.
func CollectionPath(id string) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("%s/%s", CollectionBasePath, id))
}

// ItemPath returns the D-Bus object path for an item given the path its
// parent collection is currently registered at (the default collection
// may be registered at either CollectionBasePath or AliasBasePath).
func ItemPath(collectionPath dbus.ObjectPath, itemID string) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("%s/%s", collectionPath, itemID))
}

// SessionPath returns the D-Bus object path for a session id.
func SessionPath(id string) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("%s/%s", SessionBasePath, id))
}

// ParseCollectionPath extracts the collection id from a /collection/<id> path.
func ParseCollectionPath(path dbus.ObjectPath) (string, error) {
	prefix := CollectionBasePath + "/"
	if !strings.HasPrefix(string(path), prefix) {
		return "", fmt.Errorf("invalid collection path: %s", path)
	}
	id := strings.TrimPrefix(string(path), prefix)
	if strings.Contains(id, "/") || !IsHex32(id) {
		return "", fmt.Errorf("invalid collection path: %s", path)
	}
	return id, nil
}

// ParseItemPath extracts the parent collection path and item id from an
// item path. The parent may be registered under CollectionBasePath or,
// for the default collection, under AliasBasePath.
func ParseItemPath(path dbus.ObjectPath) (collectionPath dbus.ObjectPath, itemID string, err error) {
	s := string(path)
	idx := strings.LastIndex(s, "/")
	if idx <= 0 {
		return "", "", fmt.Errorf("invalid item path: %s", path)
	}
	collPart, id := s[:idx], s[idx+1:]
	if !IsHex32(id) {
		return "", "", fmt.Errorf("invalid item path: %s", path)
	}
	if !IsCollectionPath(dbus.ObjectPath(collPart)) {
		return "", "", fmt.Errorf("invalid item path: %s", path)
	}
	return dbus.ObjectPath(collPart), id, nil
}

// ParseSessionPath extracts the session id from a session path.
func ParseSessionPath(path dbus.ObjectPath) (string, error) {
	prefix := SessionBasePath + "/"
	if !strings.HasPrefix(string(path), prefix) {
		return "", fmt.Errorf("invalid session path: %s", path)
	}
	id := strings.TrimPrefix(string(path), prefix)
	if !IsHex32(id) {
		return "", fmt.Errorf("invalid session path: %s", path)
	}
	return id, nil
}

// IsCollectionPath reports whether path names a collection (either under
// CollectionBasePath, or the fixed default alias path).
func IsCollectionPath(path dbus.ObjectPath) bool {
	if path == DefaultCollectionPath {
		return true
	}
	prefix := CollectionBasePath + "/"
	if !strings.HasPrefix(string(path), prefix) {
		return false
	}
	id := strings.TrimPrefix(string(path), prefix)
	return IsHex32(id)
}

// IsItemPath reports whether path names an item under some collection.
func IsItemPath(path dbus.ObjectPath) bool {
	_, _, err := ParseItemPath(path)
	return err == nil
}
