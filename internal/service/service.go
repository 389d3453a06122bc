package service

import (
	"fmt"
	"log"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"

	"github.com/go-secrets/secretsd/internal/config"
	dbtypes "github.com/go-secrets/secretsd/internal/dbus"
)

// Service implements org.freedesktop.Secret.Service, the root object of
// the Secret Service object model. It owns the alias map directly; the set
// of live collections is tracked by CollectionManager, which is itself
// indexed by D-Bus path rather than duplicated here.
type Service struct {
	conn *dbus.Conn
	cfg  *config.Config

	sessions    *SessionManager
	collections *CollectionManager

	mu      sync.RWMutex
	aliases map[string]dbus.ObjectPath

	props *prop.Properties
}

// New connects to the session bus and constructs an unstarted Service.
func New(cfg *config.Config) (*Service, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	svc := &Service{
		conn:    conn,
		cfg:     cfg,
		aliases: make(map[string]dbus.ObjectPath),
	}
	svc.sessions = NewSessionManager(conn)
	svc.collections = NewCollectionManager(svc)

	return svc, nil
}

// Start exports the service object, requests the bus name, and creates the
// default collection.
func (s *Service) Start() error {
	if err := s.conn.Export(s, dbtypes.ServicePath, dbtypes.SecretServiceInterface); err != nil {
		return fmt.Errorf("failed to export service: %w", err)
	}

	propsSpec := map[string]map[string]*prop.Prop{
		dbtypes.SecretServiceInterface: {
			"Collections": {
				Value:    s.collections.Paths(),
				Writable: false,
				Emit:     prop.EmitTrue,
			},
		},
	}

	props, err := prop.Export(s.conn, dbtypes.ServicePath, propsSpec)
	if err != nil {
		return fmt.Errorf("failed to export properties: %w", err)
	}
	s.props = props

	if err := s.conn.Export(introspect(serviceIntrospectionXML), dbtypes.ServicePath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspection: %w", err)
	}

	flags := dbus.NameFlagDoNotQueue
	if s.cfg.Replace {
		flags |= dbus.NameFlagReplaceExisting
	}

	reply, err := s.conn.RequestName(s.cfg.BusName, flags)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", s.cfg.BusName)
	}

	log.Printf("acquired D-Bus name: %s", s.cfg.BusName)

	if err := s.ensureDefaultCollection(); err != nil {
		return fmt.Errorf("failed to create default collection: %w", err)
	}

	return nil
}

// Stop closes every session, releases the bus name, and closes the connection.
func (s *Service) Stop() error {
	s.sessions.CloseAll()

	if _, err := s.conn.ReleaseName(s.cfg.BusName); err != nil {
		return err
	}
	return s.conn.Close()
}

func (s *Service) ensureDefaultCollection() error {
	coll, err := s.collections.Create(dbtypes.DefaultCollectionPath, s.cfg.DefaultCollectionLabel, dbtypes.DefaultAliasName)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.aliases[dbtypes.DefaultAliasName] = coll.Path()
	s.mu.Unlock()

	s.refreshCollections()
	return nil
}

// OpenSession implements org.freedesktop.Secret.Service.OpenSession.
func (s *Service) OpenSession(algorithm string, input dbus.Variant) (dbus.Variant, dbus.ObjectPath, *dbus.Error) {
	var inputBytes []byte
	if v, ok := input.Value().([]byte); ok {
		inputBytes = v
	}

	session, output, err := s.sessions.CreateSession(algorithm, inputBytes)
	if err != nil {
		if algorithm != dbtypes.AlgorithmPlain && algorithm != dbtypes.AlgorithmDH {
			return dbus.MakeVariant([]byte{}), dbtypes.NoPrompt, ErrAlgorithmUnsupported(err.Error())
		}
		return dbus.MakeVariant([]byte{}), dbtypes.NoPrompt, ErrInvalidArgs(err.Error())
	}

	return dbus.MakeVariant(output), session.Path(), nil
}

// CreateCollection implements org.freedesktop.Secret.Service.CreateCollection.
func (s *Service) CreateCollection(properties map[string]dbus.Variant, alias string) (dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
	label := ""
	if v, ok := properties["org.freedesktop.Secret.Collection.Label"]; ok {
		if l, ok := v.Value().(string); ok {
			label = l
		}
	}

	if alias != "" {
		s.mu.RLock()
		existing, ok := s.aliases[alias]
		s.mu.RUnlock()
		if ok {
			return existing, dbtypes.NoPrompt, nil
		}
	}

	var path dbus.ObjectPath
	if alias == dbtypes.DefaultAliasName {
		path = dbtypes.DefaultCollectionPath
	} else {
		path = dbtypes.CollectionPath(dbtypes.NewID())
	}

	coll, err := s.collections.Create(path, label, alias)
	if err != nil {
		return dbtypes.NoPrompt, dbtypes.NoPrompt, ErrFailed(err.Error())
	}

	if alias != "" {
		s.mu.Lock()
		s.aliases[alias] = coll.Path()
		s.mu.Unlock()
	}

	s.emitCollectionCreated(coll.Path())
	s.refreshCollections()

	return coll.Path(), dbtypes.NoPrompt, nil
}

// SearchItems implements org.freedesktop.Secret.Service.SearchItems: every
// live collection is asked for matches, partitioned by lock state.
func (s *Service) SearchItems(attributes map[string]string) ([]dbus.ObjectPath, []dbus.ObjectPath, *dbus.Error) {
	var unlocked, locked []dbus.ObjectPath

	for _, coll := range s.collections.All() {
		paths, dbusErr := coll.SearchItems(attributes)
		if dbusErr != nil {
			continue
		}
		collLocked := coll.Locked()
		for _, path := range paths {
			item, ok := s.lookupItem(path)
			if !ok {
				continue
			}
			if collLocked || item.Locked() {
				locked = append(locked, path)
			} else {
				unlocked = append(unlocked, path)
			}
		}
	}

	return unlocked, locked, nil
}

// Unlock implements org.freedesktop.Secret.Service.Unlock.
func (s *Service) Unlock(objects []dbus.ObjectPath) ([]dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
	return s.setLocked(objects, false), dbtypes.NoPrompt, nil
}

// Lock implements org.freedesktop.Secret.Service.Lock.
func (s *Service) Lock(objects []dbus.ObjectPath) ([]dbus.ObjectPath, dbus.ObjectPath, *dbus.Error) {
	return s.setLocked(objects, true), dbtypes.NoPrompt, nil
}

// setLocked applies Lock or Unlock sequentially across the given paths,
// silently skipping paths that don't resolve or whose state doesn't change.
func (s *Service) setLocked(objects []dbus.ObjectPath, lock bool) []dbus.ObjectPath {
	var changed []dbus.ObjectPath

	for _, path := range objects {
		if dbtypes.IsCollectionPath(path) {
			coll, ok := s.collections.Get(path)
			if !ok {
				continue
			}
			var didChange bool
			if lock {
				didChange = coll.lock()
			} else {
				didChange = coll.unlock()
			}
			if didChange {
				changed = append(changed, path)
				s.emitCollectionChanged(path)
			}
			continue
		}

		item, ok := s.lookupItem(path)
		if !ok {
			continue
		}
		var didChange bool
		if lock {
			didChange = item.lock()
		} else {
			didChange = item.unlock()
		}
		if didChange {
			changed = append(changed, path)
			s.emitItemChanged(item.collection.path, path)
		}
	}

	return changed
}

// secretResult pairs a resolved path with its encoded secret for the
// concurrent GetSecrets fan-out.
type secretResult struct {
	path   dbus.ObjectPath
	secret dbtypes.Secret
}

// GetSecrets implements org.freedesktop.Secret.Service.GetSecrets,
// performing the per-item lookup and encryption concurrently: total time
// is bounded by the slowest lookup, not their sum.
func (s *Service) GetSecrets(items []dbus.ObjectPath, sessionPath dbus.ObjectPath) (map[dbus.ObjectPath]dbtypes.Secret, *dbus.Error) {
	session, ok := s.sessions.GetSession(sessionPath)
	if !ok {
		return nil, ErrSessionNotFound("session not found")
	}

	results := make(chan secretResult, len(items))
	var wg sync.WaitGroup

	for _, path := range items {
		wg.Add(1)
		go func(path dbus.ObjectPath) {
			defer wg.Done()

			item, ok := s.lookupItem(path)
			if !ok {
				return
			}
			if item.collection.Locked() || item.Locked() {
				return
			}

			item.mu.RLock()
			secret := item.data.Secret
			item.mu.RUnlock()

			params, ciphertext, err := session.Encrypt(secret)
			if err != nil {
				return
			}

			results <- secretResult{
				path: path,
				secret: dbtypes.Secret{
					Session:     sessionPath,
					Parameters:  params,
					Value:       ciphertext,
					ContentType: dbtypes.SecretContentType,
				},
			}
		}(path)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	secrets := make(map[dbus.ObjectPath]dbtypes.Secret)
	for r := range results {
		secrets[r.path] = r.secret
	}

	return secrets, nil
}

// ReadAlias implements org.freedesktop.Secret.Service.ReadAlias.
func (s *Service) ReadAlias(name string) (dbus.ObjectPath, *dbus.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, ok := s.aliases[name]
	if !ok {
		return dbtypes.NoPrompt, nil
	}
	return path, nil
}

// SetAlias implements org.freedesktop.Secret.Service.SetAlias. Whether
// SetAlias("default", <non-default path>) is allowed is an open question in
// the upstream protocol; this implementation permits it and simply
// repoints the alias map entry, leaving any collection registered at the
// fixed default path untouched (see DESIGN.md).
func (s *Service) SetAlias(name string, collection dbus.ObjectPath) *dbus.Error {
	if collection == dbtypes.NoPrompt {
		s.mu.Lock()
		_, existed := s.aliases[name]
		delete(s.aliases, name)
		s.mu.Unlock()

		if !existed {
			return ErrObjectNotFound("no such alias")
		}
		return nil
	}

	coll, ok := s.collections.Get(collection)
	if !ok {
		return ErrObjectNotFound("no such collection")
	}
	coll.setAlias(name)

	s.mu.Lock()
	s.aliases[name] = collection
	s.mu.Unlock()

	return nil
}

func (s *Service) lookupItem(path dbus.ObjectPath) (*Item, bool) {
	collPath, id, err := dbtypes.ParseItemPath(path)
	if err != nil {
		return nil, false
	}
	coll, ok := s.collections.Get(collPath)
	if !ok {
		return nil, false
	}
	return coll.GetItem(id)
}

// removeCollection unregisters coll from the manager and the alias map.
func (s *Service) removeCollection(coll *Collection) {
	s.collections.Remove(coll.Path())

	s.mu.Lock()
	for name, path := range s.aliases {
		if path == coll.Path() {
			delete(s.aliases, name)
		}
	}
	s.mu.Unlock()

	s.refreshCollections()
}

func (s *Service) refreshCollections() {
	if s.props != nil {
		s.props.SetMust(dbtypes.SecretServiceInterface, "Collections", s.collections.Paths())
	}
}

func (s *Service) emitCollectionCreated(path dbus.ObjectPath) {
	s.conn.Emit(dbtypes.ServicePath, dbtypes.SecretServiceInterface+".CollectionCreated", path)
}

func (s *Service) emitCollectionDeleted(path dbus.ObjectPath) {
	s.conn.Emit(dbtypes.ServicePath, dbtypes.SecretServiceInterface+".CollectionDeleted", path)
}

func (s *Service) emitCollectionChanged(path dbus.ObjectPath) {
	s.conn.Emit(dbtypes.ServicePath, dbtypes.SecretServiceInterface+".CollectionChanged", path)
}

func (s *Service) emitItemCreated(collPath, itemPath dbus.ObjectPath) {
	s.conn.Emit(collPath, dbtypes.CollectionInterface+".ItemCreated", itemPath)
}

func (s *Service) emitItemDeleted(collPath, itemPath dbus.ObjectPath) {
	s.conn.Emit(collPath, dbtypes.CollectionInterface+".ItemDeleted", itemPath)
}

func (s *Service) emitItemChanged(collPath, itemPath dbus.ObjectPath) {
	s.conn.Emit(collPath, dbtypes.CollectionInterface+".ItemChanged", itemPath)
}

const serviceIntrospectionXML = `<node>
  <interface name="org.freedesktop.Secret.Service">
    <method name="OpenSession">
      <arg name="algorithm" type="s" direction="in"/>
      <arg name="input" type="v" direction="in"/>
      <arg name="output" type="v" direction="out"/>
      <arg name="result" type="o" direction="out"/>
    </method>
    <method name="CreateCollection">
      <arg name="properties" type="a{sv}" direction="in"/>
      <arg name="alias" type="s" direction="in"/>
      <arg name="collection" type="o" direction="out"/>
      <arg name="prompt" type="o" direction="out"/>
    </method>
    <method name="SearchItems">
      <arg name="attributes" type="a{ss}" direction="in"/>
      <arg name="unlocked" type="ao" direction="out"/>
      <arg name="locked" type="ao" direction="out"/>
    </method>
    <method name="Unlock">
      <arg name="objects" type="ao" direction="in"/>
      <arg name="unlocked" type="ao" direction="out"/>
      <arg name="prompt" type="o" direction="out"/>
    </method>
    <method name="Lock">
      <arg name="objects" type="ao" direction="in"/>
      <arg name="locked" type="ao" direction="out"/>
      <arg name="prompt" type="o" direction="out"/>
    </method>
    <method name="GetSecrets">
      <arg name="items" type="ao" direction="in"/>
      <arg name="session" type="o" direction="in"/>
      <arg name="secrets" type="a{o(oayays)}" direction="out"/>
    </method>
    <method name="ReadAlias">
      <arg name="name" type="s" direction="in"/>
      <arg name="collection" type="o" direction="out"/>
    </method>
    <method name="SetAlias">
      <arg name="name" type="s" direction="in"/>
      <arg name="collection" type="o" direction="in"/>
    </method>
    <signal name="CollectionCreated">
      <arg name="collection" type="o"/>
    </signal>
    <signal name="CollectionDeleted">
      <arg name="collection" type="o"/>
    </signal>
    <signal name="CollectionChanged">
      <arg name="collection" type="o"/>
    </signal>
    <property name="Collections" type="ao" access="read"/>
  </interface>
</node>`
