package service

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbtypes "github.com/go-secrets/secretsd/internal/dbus"
	"github.com/go-secrets/secretsd/internal/model"
)

// These tests exercise the object model's bookkeeping directly, without a
// live D-Bus connection: Collection/Item are constructed in-package and
// never export()ed, so their lock/index logic can be driven without a bus
// to talk to. Emitting signals and exporting objects is left untested here,
// the same scope the upstream package this one is modeled on keeps for its
// own D-Bus-facing service type.

func newTestCollection(alias string) *Collection {
	return newCollection(nil, dbtypes.CollectionPath(dbtypes.NewID()), "Test", alias)
}

func newTestItem(coll *Collection) *Item {
	id := dbtypes.NewID()
	item := &Item{
		path:       dbtypes.ItemPath(coll.path, id),
		id:         id,
		collection: coll,
		svc:        coll.svc,
		data: model.ItemData{
			Label:      "secret",
			Attributes: model.Attributes{"app": "mail"},
			Locked:     true,
		},
	}
	coll.items[id] = item
	coll.index[id] = item.data.Attributes.Clone()
	return item
}

func TestCollectionSearchItemsExactSet(t *testing.T) {
	coll := newTestCollection("")

	idA, idB, idC := dbtypes.NewID(), dbtypes.NewID(), dbtypes.NewID()
	coll.index[idA] = model.Attributes{"app": "mail", "user": "alice"}
	coll.index[idB] = model.Attributes{"app": "mail"}
	coll.index[idC] = model.Attributes{"app": "mail", "user": "alice", "extra": "x"}

	results, dbusErr := coll.SearchItems(map[string]string{"app": "mail", "user": "alice"})
	require.Nil(t, dbusErr)
	assert.Equal(t, []dbus.ObjectPath{dbtypes.ItemPath(coll.path, idA)}, results)
}

func TestCollectionSearchItemsNoMatch(t *testing.T) {
	coll := newTestCollection("")
	coll.index[dbtypes.NewID()] = model.Attributes{"app": "mail"}

	results, dbusErr := coll.SearchItems(map[string]string{"app": "chat"})
	require.Nil(t, dbusErr)
	assert.Empty(t, results)
}

func TestCollectionLockUnlockIdempotent(t *testing.T) {
	coll := newTestCollection("")
	require.True(t, coll.Locked(), "new collection should start locked")

	assert.False(t, coll.lock(), "locking an already-locked collection should report no change")

	assert.True(t, coll.unlock(), "unlocking a locked collection should report a change")
	assert.False(t, coll.Locked())

	assert.False(t, coll.unlock(), "unlocking an already-unlocked collection should report no change")

	assert.True(t, coll.lock(), "locking an unlocked collection should report a change")
	assert.True(t, coll.Locked())
}

func TestItemLockUnlockIdempotent(t *testing.T) {
	coll := newTestCollection("")
	item := newTestItem(coll)

	require.True(t, item.Locked(), "newTestItem seeds a locked item, matching CreateItem's default")

	assert.False(t, item.lock(), "locking an already-locked item should report no change")

	assert.True(t, item.unlock(), "unlocking a locked item should report a change")
	assert.False(t, item.Locked())

	assert.False(t, item.unlock(), "unlocking an already-unlocked item should report no change")

	assert.True(t, item.lock(), "locking an unlocked item should report a change")
}

func TestCollectionGetItem(t *testing.T) {
	coll := newTestCollection("")
	item := newTestItem(coll)

	got, ok := coll.GetItem(item.id)
	require.True(t, ok)
	assert.Same(t, item, got)

	_, ok = coll.GetItem(dbtypes.NewID())
	assert.False(t, ok, "GetItem of an unknown id should report not found")
}

func TestCollectionSetAlias(t *testing.T) {
	coll := newTestCollection("")
	coll.setAlias("work")

	coll.mu.RLock()
	defer coll.mu.RUnlock()
	assert.Equal(t, "work", coll.data.Alias)
}

func TestCollectionRemoveMatchingLocked(t *testing.T) {
	coll := newTestCollection("")
	match1 := newTestItem(coll)
	match2 := newTestItem(coll)
	other := newTestItem(coll)

	attrs := model.Attributes{"app": "mail"}
	coll.index[match1.id] = attrs
	coll.index[match2.id] = attrs.Clone()
	coll.index[other.id] = model.Attributes{"app": "chat"}

	coll.mu.Lock()
	removed := coll.removeMatchingLocked(attrs)
	coll.mu.Unlock()

	assert.ElementsMatch(t, []*Item{match1, match2}, removed, "only the exact-set matches should be removed")

	_, ok := coll.GetItem(match1.id)
	assert.False(t, ok)
	_, ok = coll.GetItem(match2.id)
	assert.False(t, ok)

	got, ok := coll.GetItem(other.id)
	require.True(t, ok, "the non-matching item should be untouched")
	assert.Same(t, other, got)
}

func TestCollectionRemoveItem(t *testing.T) {
	coll := newTestCollection("")
	item := newTestItem(coll)

	coll.removeItem(item.id)

	_, ok := coll.GetItem(item.id)
	assert.False(t, ok, "removeItem should drop the item from the items map")

	coll.mu.RLock()
	_, inIndex := coll.index[item.id]
	coll.mu.RUnlock()
	assert.False(t, inIndex, "removeItem should drop the item from the attribute index")
}

// fakeCryptoSession is a minimal crypto.Session stand-in for driving
// Session.Encrypt/Decrypt without a real cipher or D-Bus connection.
type fakeCryptoSession struct {
	closed bool
}

func (f *fakeCryptoSession) Algorithm() string { return "fake" }

func (f *fakeCryptoSession) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	return []byte("params"), append([]byte(nil), plaintext...), nil
}

func (f *fakeCryptoSession) Decrypt(parameters, ciphertext []byte) ([]byte, error) {
	return append([]byte(nil), ciphertext...), nil
}

func (f *fakeCryptoSession) Close() error {
	f.closed = true
	return nil
}

func TestSessionEncryptDecryptDelegates(t *testing.T) {
	fake := &fakeCryptoSession{}
	sess := &Session{
		path:   dbtypes.SessionPath(dbtypes.NewID()),
		crypto: fake,
	}

	params, ciphertext, err := sess.Encrypt([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "params", string(params))
	assert.Equal(t, "hello", string(ciphertext))

	plaintext, err := sess.Decrypt(params, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(plaintext))
}

func TestSessionRejectsUseAfterClose(t *testing.T) {
	fake := &fakeCryptoSession{}
	sess := &Session{
		path:   dbtypes.SessionPath(dbtypes.NewID()),
		crypto: fake,
	}

	sess.mu.Lock()
	sess.closed = true
	sess.mu.Unlock()

	_, _, err := sess.Encrypt([]byte("x"))
	assert.True(t, errors.Is(err, errSessionClosed))

	_, err = sess.Decrypt([]byte("p"), []byte("c"))
	assert.True(t, errors.Is(err, errSessionClosed))
}

func TestNewDBusError(t *testing.T) {
	err := NewDBusError(ErrNameNoSession, "no such session")
	assert.Equal(t, ErrNameNoSession, err.Name)
	require.Len(t, err.Body, 1)
	assert.Equal(t, "no such session", err.Body[0])
}

func TestErrorConstructors(t *testing.T) {
	assert.Equal(t, ErrNameAlgorithmUnsupported, ErrAlgorithmUnsupported("x").Name)
	assert.Equal(t, ErrNameIsLocked, ErrLocked("x").Name)
	assert.Equal(t, ErrNameNoSession, ErrSessionNotFound("x").Name)
	assert.Equal(t, ErrNameNoSuchObject, ErrObjectNotFound("x").Name)
	assert.Equal(t, ErrNameInvalidArgs, ErrInvalidArgs("x").Name)
	assert.Equal(t, ErrNameFailed, ErrFailed("x").Name)
}
