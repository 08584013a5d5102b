package exchange

// Key identifies a typed attachment. Keys compare by identity, so each
// collaborator declares its own with NewKey.
type Key[T any] struct {
	name string
}

// NewKey returns a fresh attachment key. The name is only used for debugging.
func NewKey[T any](name string) *Key[T] {
	return &Key[T]{name: name}
}

func (k *Key[T]) String() string { return k.name }

// Attach stores v on the exchange under k, replacing any previous value.
func Attach[T any](ex *Exchange, k *Key[T], v T) {
	ex.attachments[k] = v
}

// Attachment returns the value stored under k.
func Attachment[T any](ex *Exchange, k *Key[T]) (T, bool) {
	v, ok := ex.attachments[k].(T)
	return v, ok
}
