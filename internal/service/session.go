package service

import (
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/go-secrets/secretsd/internal/crypto"
	dbtypes "github.com/go-secrets/secretsd/internal/dbus"
)

// Session represents one org.freedesktop.Secret.Session object: a client's
// cipher context. Sessions are independent of collections and items — they
// hold only the cipher state, looked up by path whenever an Item needs to
// encrypt or decrypt a value.
type Session struct {
	path   dbus.ObjectPath
	id     string
	crypto crypto.Session
	conn   *dbus.Conn
	mu     sync.RWMutex
	closed bool

	onClose func()
}

// SessionManager tracks the set of live sessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	conn     *dbus.Conn
}

// NewSessionManager creates a new session manager bound to conn.
func NewSessionManager(conn *dbus.Conn) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		conn:     conn,
	}
}

// CreateSession performs OpenSession's handshake and registers the
// resulting session object.
func (m *SessionManager) CreateSession(algorithm string, input []byte) (*Session, []byte, error) {
	cryptoSession, output, err := crypto.NewSession(algorithm, input)
	if err != nil {
		return nil, nil, err
	}

	id := dbtypes.NewID()
	session := &Session{
		path:   dbtypes.SessionPath(id),
		id:     id,
		crypto: cryptoSession,
		conn:   m.conn,
	}

	m.mu.Lock()
	session.onClose = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.sessions, id)
	}
	m.sessions[id] = session
	m.mu.Unlock()

	if err := m.conn.Export(session, session.path, dbtypes.SessionInterface); err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, nil, err
	}

	introXML := `<node>
  <interface name="org.freedesktop.Secret.Session">
    <method name="Close"/>
  </interface>
</node>`
	if err := m.conn.Export(introspect(introXML), session.path, "org.freedesktop.DBus.Introspectable"); err != nil {
		m.conn.Export(nil, session.path, dbtypes.SessionInterface)
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, nil, err
	}

	return session, output, nil
}

// GetSession looks up a session by its D-Bus path.
func (m *SessionManager) GetSession(path dbus.ObjectPath) (*Session, bool) {
	id, err := dbtypes.ParseSessionPath(path)
	if err != nil {
		return nil, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	return session, ok
}

// CloseAll closes every live session, used during Service.Stop.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		session.closeLocked()
	}
}

// Path returns the session's D-Bus path.
func (s *Session) Path() dbus.ObjectPath {
	return s.path
}

// Close implements org.freedesktop.Secret.Session.Close.
func (s *Session) Close() *dbus.Error {
	s.closeLocked()
	return nil
}

func (s *Session) closeLocked() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	s.conn.Export(nil, s.path, dbtypes.SessionInterface)
	s.conn.Export(nil, s.path, "org.freedesktop.DBus.Introspectable")
	s.crypto.Close()

	if s.onClose != nil {
		s.onClose()
	}
}

// Encrypt encrypts plaintext through this session's cipher.
func (s *Session) Encrypt(plaintext []byte) (params, ciphertext []byte, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, nil, errSessionClosed
	}
	return s.crypto.Encrypt(plaintext)
}

// Decrypt decrypts ciphertext through this session's cipher.
func (s *Session) Decrypt(params, ciphertext []byte) (plaintext []byte, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errSessionClosed
	}
	return s.crypto.Decrypt(params, ciphertext)
}

// introspect is a minimal static org.freedesktop.DBus.Introspectable handler.
type introspect string

func (i introspect) Introspect() (string, *dbus.Error) {
	return string(i), nil
}
