package service

import (
	"errors"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"

	"github.com/go-secrets/secretsd/internal/model"

	dbtypes "github.com/go-secrets/secretsd/internal/dbus"
)

// Collection implements org.freedesktop.Secret.Collection. It owns its set
// of child items directly (no external store): the items map and the
// attribute index live here, guarded by the collection's own lock.
type Collection struct {
	path dbus.ObjectPath
	svc  *Service

	mu    sync.RWMutex
	data  model.CollectionData
	items map[string]*Item            // item id -> Item
	index map[string]model.Attributes // item id -> attribute set, mirrors items' keys

	props *prop.Properties
}

// newCollection constructs an unregistered Collection at path with the
// given label and alias.
func newCollection(svc *Service, path dbus.ObjectPath, label, alias string) *Collection {
	now := time.Now()
	return &Collection{
		path: path,
		svc:  svc,
		data: model.CollectionData{
			Label:    label,
			Alias:    alias,
			Locked:   true,
			Created:  now,
			Modified: now,
		},
		items: make(map[string]*Item),
		index: make(map[string]model.Attributes),
	}
}

// Path returns the collection's D-Bus path.
func (c *Collection) Path() dbus.ObjectPath {
	return c.path
}

// Locked reports whether the collection is currently locked.
func (c *Collection) Locked() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Locked
}

// export registers the collection's interface, properties, and
// introspection data at its path.
func (c *Collection) export() error {
	conn := c.svc.conn

	if err := conn.Export(c, c.path, dbtypes.CollectionInterface); err != nil {
		return err
	}

	c.mu.RLock()
	propsSpec := c.propsSpecLocked()
	c.mu.RUnlock()

	props, err := prop.Export(conn, c.path, propsSpec)
	if err != nil {
		conn.Export(nil, c.path, dbtypes.CollectionInterface)
		return err
	}

	c.mu.Lock()
	c.props = props
	c.mu.Unlock()

	if err := conn.Export(introspect(collectionIntrospectionXML), c.path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return err
	}

	return nil
}

func (c *Collection) propsSpecLocked() map[string]map[string]*prop.Prop {
	return map[string]map[string]*prop.Prop{
		dbtypes.CollectionInterface: {
			"Items": {
				Value:    c.itemPathsLocked(),
				Writable: false,
				Emit:     prop.EmitTrue,
			},
			"Label": {
				Value:    c.data.Label,
				Writable: true,
				Emit:     prop.EmitTrue,
				Callback: func(ch *prop.Change) *dbus.Error {
					newLabel, ok := ch.Value.(string)
					if !ok {
						return ErrInvalidArgs("invalid label type")
					}
					return c.setLabel(newLabel)
				},
			},
			"Locked": {
				Value:    c.data.Locked,
				Writable: false,
				Emit:     prop.EmitTrue,
			},
			"Created": {
				Value:    uint64(c.data.Created.Unix()),
				Writable: false,
				Emit:     prop.EmitFalse,
			},
			"Modified": {
				Value:    uint64(c.data.Modified.Unix()),
				Writable: false,
				Emit:     prop.EmitFalse,
			},
		},
	}
}

// unexport removes the collection's own interfaces from the object server.
// Its items are not touched here; Delete removes them first.
func (c *Collection) unexport() {
	conn := c.svc.conn
	conn.Export(nil, c.path, dbtypes.CollectionInterface)
	conn.Export(nil, c.path, "org.freedesktop.DBus.Properties")
	conn.Export(nil, c.path, "org.freedesktop.DBus.Introspectable")
}

// Delete implements org.freedesktop.Secret.Collection.Delete: every child
// item is deleted first, each emitting ItemDeleted, before this collection
// unregisters and emits CollectionDeleted.
func (c *Collection) Delete() (dbus.ObjectPath, *dbus.Error) {
	c.mu.Lock()
	items := make([]*Item, 0, len(c.items))
	for _, item := range c.items {
		items = append(items, item)
	}
	c.mu.Unlock()

	for _, item := range items {
		item.deleteAsCascade()
	}

	c.svc.removeCollection(c)

	c.unexport()
	c.svc.emitCollectionDeleted(c.path)

	return dbtypes.NoPrompt, nil
}

// SearchItems implements org.freedesktop.Secret.Collection.SearchItems:
// exact set-equality matching against the attribute index.
func (c *Collection) SearchItems(attributes map[string]string) ([]dbus.ObjectPath, *dbus.Error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	query := model.Attributes(attributes)
	var paths []dbus.ObjectPath
	for id, attrs := range c.index {
		if attrs.Equal(query) {
			paths = append(paths, dbtypes.ItemPath(c.path, id))
		}
	}
	return paths, nil
}

// CreateItem implements org.freedesktop.Secret.Collection.CreateItem.
func (c *Collection) CreateItem(properties map[string]dbus.Variant, secret dbtypes.Secret, replace bool) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
	session, ok := c.svc.sessions.GetSession(secret.Session)
	if !ok {
		return "/", "/", ErrSessionNotFound("session not found")
	}

	plaintext, err := session.Decrypt(secret.Parameters, secret.Value)
	if err != nil {
		if errors.Is(err, errSessionClosed) {
			return "/", "/", ErrSessionNotFound(err.Error())
		}
		return "/", "/", ErrInvalidArgs(err.Error())
	}

	label, attributes := extractItemProperties(properties)

	c.mu.Lock()
	defer c.mu.Unlock()

	var replaced []*Item
	if replace {
		replaced = c.removeMatchingLocked(attributes)
	}

	id := dbtypes.NewID()
	now := time.Now()
	item := &Item{
		path:       dbtypes.ItemPath(c.path, id),
		id:         id,
		collection: c,
		svc:        c.svc,
		data: model.ItemData{
			Label:      label,
			Attributes: attributes.Clone(),
			Secret:     plaintext,
			Created:    now,
			Modified:   now,
			Locked:     true,
		},
	}
	if err := item.export(); err != nil {
		return "/", "/", ErrFailed(err.Error())
	}

	c.items[id] = item
	c.index[id] = attributes.Clone()
	c.data.Modified = now
	c.refreshItemsLocked()

	for _, old := range replaced {
		old.unexport()
		c.svc.emitItemDeleted(c.path, old.path)
	}

	itemPath := item.path
	c.svc.emitItemCreated(c.path, itemPath)
	c.svc.emitCollectionChanged(c.path)

	return itemPath, dbtypes.NoPrompt, nil
}

// removeMatchingLocked drops every item whose attribute set exactly equals
// attributes from the items map and index, returning the removed items.
// Callers must hold c.mu.
func (c *Collection) removeMatchingLocked(attributes model.Attributes) []*Item {
	var removed []*Item
	for id, attrs := range c.index {
		if attrs.Equal(attributes) {
			removed = append(removed, c.items[id])
			delete(c.items, id)
			delete(c.index, id)
		}
	}
	return removed
}

func (c *Collection) setLabel(label string) *dbus.Error {
	c.mu.Lock()
	c.data.Label = label
	c.data.Modified = time.Now()
	c.mu.Unlock()

	c.svc.emitCollectionChanged(c.path)
	return nil
}

// lock sets the collection's Locked flag to true if not already set,
// reporting whether the state actually changed.
func (c *Collection) lock() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data.Locked {
		return false
	}
	c.data.Locked = true
	c.refreshLockedLocked()
	return true
}

// unlock mirrors lock.
func (c *Collection) unlock() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.data.Locked {
		return false
	}
	c.data.Locked = false
	c.refreshLockedLocked()
	return true
}

func (c *Collection) refreshLockedLocked() {
	if c.props != nil {
		c.props.SetMust(dbtypes.CollectionInterface, "Locked", c.data.Locked)
	}
}

// removeItem drops id from the collection's item set and attribute index.
// Called by Item.deleteAsCascade, which holds no lock of its own here.
func (c *Collection) removeItem(id string) {
	c.mu.Lock()
	delete(c.items, id)
	delete(c.index, id)
	c.data.Modified = time.Now()
	c.refreshItemsLocked()
	c.mu.Unlock()
}

// GetItem returns the item registered under id, if any.
func (c *Collection) GetItem(id string) (*Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	return item, ok
}

// setAlias records the name this collection is currently aliased under. A
// collection holds at most one alias; a later call overwrites the prior
// value, matching Service.SetAlias reassigning a name to a new target.
func (c *Collection) setAlias(name string) {
	c.mu.Lock()
	c.data.Alias = name
	c.mu.Unlock()
}

func (c *Collection) itemPathsLocked() []dbus.ObjectPath {
	paths := make([]dbus.ObjectPath, 0, len(c.items))
	for id := range c.items {
		paths = append(paths, dbtypes.ItemPath(c.path, id))
	}
	return paths
}

func (c *Collection) refreshItemsLocked() {
	if c.props != nil {
		c.props.SetMust(dbtypes.CollectionInterface, "Items", c.itemPathsLocked())
	}
}

func extractItemProperties(properties map[string]dbus.Variant) (string, model.Attributes) {
	label := ""
	if v, ok := properties["org.freedesktop.Secret.Item.Label"]; ok {
		if s, ok := v.Value().(string); ok {
			label = s
		}
	}

	attributes := make(model.Attributes)
	if v, ok := properties["org.freedesktop.Secret.Item.Attributes"]; ok {
		switch a := v.Value().(type) {
		case map[string]string:
			for k, val := range a {
				attributes[k] = val
			}
		case map[string]dbus.Variant:
			for k, vv := range a {
				if s, ok := vv.Value().(string); ok {
					attributes[k] = s
				}
			}
		}
	}

	return label, attributes
}

const collectionIntrospectionXML = `<node>
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
  <interface name="org.freedesktop.Secret.Collection">
    <method name="Delete">
      <arg name="prompt" type="o" direction="out"/>
    </method>
    <method name="SearchItems">
      <arg name="attributes" type="a{ss}" direction="in"/>
      <arg name="results" type="ao" direction="out"/>
    </method>
    <method name="CreateItem">
      <arg name="properties" type="a{sv}" direction="in"/>
      <arg name="secret" type="(oayays)" direction="in"/>
      <arg name="replace" type="b" direction="in"/>
      <arg name="item" type="o" direction="out"/>
      <arg name="prompt" type="o" direction="out"/>
    </method>
    <signal name="ItemCreated">
      <arg name="item" type="o"/>
    </signal>
    <signal name="ItemDeleted">
      <arg name="item" type="o"/>
    </signal>
    <signal name="ItemChanged">
      <arg name="item" type="o"/>
    </signal>
    <property name="Items" type="ao" access="read"/>
    <property name="Label" type="s" access="readwrite"/>
    <property name="Locked" type="b" access="read"/>
    <property name="Created" type="t" access="read"/>
    <property name="Modified" type="t" access="read"/>
  </interface>
</node>`

// CollectionManager tracks every live Collection, keyed by its current
// D-Bus path (the default collection's path is fixed; others are random).
type CollectionManager struct {
	mu          sync.RWMutex
	collections map[dbus.ObjectPath]*Collection
	svc         *Service
}

// NewCollectionManager creates a new, empty collection manager.
func NewCollectionManager(svc *Service) *CollectionManager {
	return &CollectionManager{
		collections: make(map[dbus.ObjectPath]*Collection),
		svc:         svc,
	}
}

// Create builds, registers, and tracks a new collection at path.
func (m *CollectionManager) Create(path dbus.ObjectPath, label, alias string) (*Collection, error) {
	coll := newCollection(m.svc, path, label, alias)
	if err := coll.export(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.collections[path] = coll
	m.mu.Unlock()

	return coll, nil
}

// Get returns the collection registered at path, if any.
func (m *CollectionManager) Get(path dbus.ObjectPath) (*Collection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, ok := m.collections[path]
	return coll, ok
}

// Remove drops path from the manager without touching the object server
// (the caller unexports the collection separately).
func (m *CollectionManager) Remove(path dbus.ObjectPath) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, path)
}

// Paths returns the D-Bus paths of every live collection.
func (m *CollectionManager) Paths() []dbus.ObjectPath {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make([]dbus.ObjectPath, 0, len(m.collections))
	for path := range m.collections {
		paths = append(paths, path)
	}
	return paths
}

// All returns every live collection.
func (m *CollectionManager) All() []*Collection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]*Collection, 0, len(m.collections))
	for _, coll := range m.collections {
		all = append(all, coll)
	}
	return all
}
