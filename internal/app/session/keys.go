/*
Package session contains the core logic for pairing anonymous participants.

This file defines the key store backing the key-exchange relay. The server never
inspects key material; it keeps at most one opaque payload per connection and
forwards it to the current partner when asked.
*/
package session

// keyStore holds the most recently published key payload per connection.
type keyStore struct {
	keys map[string]string
}

func newKeyStore() *keyStore {
	return &keyStore{
		keys: make(map[string]string),
	}
}

// publish records the connection's key material, overwriting any previous value.
func (k *keyStore) publish(connID, publicKey string) {
	k.keys[connID] = publicKey
}

// get returns the connection's published key, if any.
func (k *keyStore) get(connID string) (string, bool) {
	key, ok := k.keys[connID]
	return key, ok
}

// forget discards the connection's record on disconnect.
func (k *keyStore) forget(connID string) {
	delete(k.keys, connID)
}
