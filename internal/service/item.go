package service

import (
	"errors"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"

	dbtypes "github.com/go-secrets/secretsd/internal/dbus"
	"github.com/go-secrets/secretsd/internal/model"
)

// Item implements org.freedesktop.Secret.Item. It holds its own secret and
// attributes directly, guarded by its own lock; the only link back to its
// parent is the collection pointer used to keep the parent's attribute
// index and child set in sync (Delete, setAttributes), always acquired in
// Collection → Item order.
type Item struct {
	path       dbus.ObjectPath
	id         string
	collection *Collection
	svc        *Service

	mu   sync.RWMutex
	data model.ItemData

	props *prop.Properties
}

// Path returns the item's D-Bus path.
func (i *Item) Path() dbus.ObjectPath {
	return i.path
}

// Locked reports whether the item itself is locked (independent of its
// parent collection's lock state).
func (i *Item) Locked() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.data.Locked
}

func (i *Item) export() error {
	conn := i.svc.conn

	if err := conn.Export(i, i.path, dbtypes.ItemInterface); err != nil {
		return err
	}

	i.mu.RLock()
	propsSpec := i.propsSpecLocked()
	i.mu.RUnlock()

	props, err := prop.Export(conn, i.path, propsSpec)
	if err != nil {
		conn.Export(nil, i.path, dbtypes.ItemInterface)
		return err
	}

	i.mu.Lock()
	i.props = props
	i.mu.Unlock()

	if err := conn.Export(introspect(itemIntrospectionXML), i.path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return err
	}

	return nil
}

func (i *Item) propsSpecLocked() map[string]map[string]*prop.Prop {
	return map[string]map[string]*prop.Prop{
		dbtypes.ItemInterface: {
			"Locked": {
				Value:    i.data.Locked,
				Writable: false,
				Emit:     prop.EmitTrue,
			},
			"Attributes": {
				Value:    map[string]string(i.data.Attributes),
				Writable: true,
				Emit:     prop.EmitTrue,
				Callback: func(c *prop.Change) *dbus.Error {
					attrs, ok := c.Value.(map[string]string)
					if !ok {
						return ErrInvalidArgs("invalid attributes type")
					}
					return i.setAttributes(attrs)
				},
			},
			"Label": {
				Value:    i.data.Label,
				Writable: true,
				Emit:     prop.EmitTrue,
				Callback: func(c *prop.Change) *dbus.Error {
					label, ok := c.Value.(string)
					if !ok {
						return ErrInvalidArgs("invalid label type")
					}
					return i.setLabel(label)
				},
			},
			"Created": {
				Value:    uint64(i.data.Created.Unix()),
				Writable: false,
				Emit:     prop.EmitFalse,
			},
			"Modified": {
				Value:    uint64(i.data.Modified.Unix()),
				Writable: false,
				Emit:     prop.EmitFalse,
			},
		},
	}
}

func (i *Item) unexport() {
	conn := i.svc.conn
	conn.Export(nil, i.path, dbtypes.ItemInterface)
	conn.Export(nil, i.path, "org.freedesktop.DBus.Properties")
	conn.Export(nil, i.path, "org.freedesktop.DBus.Introspectable")
}

// Delete implements org.freedesktop.Secret.Item.Delete: called when a
// client addresses the item directly rather than through a collection
// cascade.
func (i *Item) Delete() (dbus.ObjectPath, *dbus.Error) {
	i.deleteAsCascade()
	return dbtypes.NoPrompt, nil
}

// deleteAsCascade performs the removal without returning a wire value;
// shared by Item.Delete and Collection.Delete's cascading removal.
func (i *Item) deleteAsCascade() {
	i.collection.removeItem(i.id)
	i.unexport()
	i.svc.emitItemDeleted(i.collection.path, i.path)
}

// GetSecret implements org.freedesktop.Secret.Item.GetSecret.
func (i *Item) GetSecret(sessionPath dbus.ObjectPath) (dbtypes.Secret, *dbus.Error) {
	session, ok := i.svc.sessions.GetSession(sessionPath)
	if !ok {
		return dbtypes.Secret{}, ErrSessionNotFound("session not found")
	}

	i.mu.RLock()
	secret := i.data.Secret
	i.mu.RUnlock()

	params, ciphertext, err := session.Encrypt(secret)
	if err != nil {
		if errors.Is(err, errSessionClosed) {
			return dbtypes.Secret{}, ErrSessionNotFound(err.Error())
		}
		return dbtypes.Secret{}, ErrFailed(err.Error())
	}

	return dbtypes.Secret{
		Session:     sessionPath,
		Parameters:  params,
		Value:       ciphertext,
		ContentType: dbtypes.SecretContentType,
	}, nil
}

// SetSecret implements org.freedesktop.Secret.Item.SetSecret.
func (i *Item) SetSecret(secret dbtypes.Secret) *dbus.Error {
	session, ok := i.svc.sessions.GetSession(secret.Session)
	if !ok {
		return ErrSessionNotFound("session not found")
	}

	plaintext, err := session.Decrypt(secret.Parameters, secret.Value)
	if err != nil {
		if errors.Is(err, errSessionClosed) {
			return ErrSessionNotFound(err.Error())
		}
		return ErrInvalidArgs(err.Error())
	}

	i.mu.Lock()
	i.data.Secret = plaintext
	i.data.Modified = time.Now()
	i.mu.Unlock()

	i.svc.emitItemChanged(i.collection.path, i.path)
	return nil
}

func (i *Item) setAttributes(attrs map[string]string) *dbus.Error {
	attributes := model.Attributes(attrs).Clone()

	i.collection.mu.Lock()
	i.mu.Lock()
	i.data.Attributes = attributes.Clone()
	i.data.Modified = time.Now()
	id := i.id
	i.mu.Unlock()
	i.collection.index[id] = attributes
	i.collection.data.Modified = time.Now()
	i.collection.mu.Unlock()

	i.svc.emitItemChanged(i.collection.path, i.path)
	return nil
}

// lock sets the item's own Locked flag to true if not already set,
// reporting whether the state actually changed.
func (i *Item) lock() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.data.Locked {
		return false
	}
	i.data.Locked = true
	i.refreshLockedLocked()
	return true
}

// unlock mirrors lock.
func (i *Item) unlock() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.data.Locked {
		return false
	}
	i.data.Locked = false
	i.refreshLockedLocked()
	return true
}

func (i *Item) refreshLockedLocked() {
	if i.props != nil {
		i.props.SetMust(dbtypes.ItemInterface, "Locked", i.data.Locked)
	}
}

func (i *Item) setLabel(label string) *dbus.Error {
	i.mu.Lock()
	i.data.Label = label
	i.data.Modified = time.Now()
	i.mu.Unlock()

	i.svc.emitItemChanged(i.collection.path, i.path)
	return nil
}

const itemIntrospectionXML = `<node>
  <interface name="org.freedesktop.DBus.Properties">
    <method name="Get">
      <arg name="interface" type="s" direction="in"/>
      <arg name="property" type="s" direction="in"/>
      <arg name="value" type="v" direction="out"/>
    </method>
    <method name="Set">
      <arg name="interface" type="s" direction="in"/>
      <arg name="property" type="s" direction="in"/>
      <arg name="value" type="v" direction="in"/>
    </method>
    <method name="GetAll">
      <arg name="interface" type="s" direction="in"/>
      <arg name="properties" type="a{sv}" direction="out"/>
    </method>
  </interface>
  <interface name="org.freedesktop.Secret.Item">
    <method name="Delete">
      <arg name="prompt" type="o" direction="out"/>
    </method>
    <method name="GetSecret">
      <arg name="session" type="o" direction="in"/>
      <arg name="secret" type="(oayays)" direction="out"/>
    </method>
    <method name="SetSecret">
      <arg name="secret" type="(oayays)" direction="in"/>
    </method>
    <property name="Locked" type="b" access="read"/>
    <property name="Attributes" type="a{ss}" access="readwrite"/>
    <property name="Label" type="s" access="readwrite"/>
    <property name="Created" type="t" access="read"/>
    <property name="Modified" type="t" access="read"/>
  </interface>
</node>`
