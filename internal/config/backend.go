package config

// Backend persists non-secret keys on the host. Values are stored as text
// and parsed against the key table on load, so a backend never needs to
// know a key's type.
type Backend interface {
	Get(key string) (val string, ok bool, err error)
	Set(key, val string) error
	Delete(key string) error
}
