package cache

// ScopedKeyer wraps a Keyer with a prefix. The runner scopes its keys with
// the encoding version of cached entries, so entries written by an older
// build are simply never looked up again.
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "v2:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// CellsKey generates a prefixed tessellation key.
func (k *ScopedKeyer) CellsKey(nodesHash string, opts CellsKeyOpts) string {
	return k.prefix + k.inner.CellsKey(nodesHash, opts)
}

// OverlayKey generates a prefixed overlay key.
func (k *ScopedKeyer) OverlayKey(inputHash string, opts OverlayKeyOpts) string {
	return k.prefix + k.inner.OverlayKey(inputHash, opts)
}
