package registry

// LayerStore is the content-addressed blob store for layer trees. Both the
// build cache and the registry reference layers by digest; the store owns
// the bytes.
type LayerStore interface {
	// Commit imports the tree at srcDir and returns its content digest
	// and size. Committing a tree that is already stored is a no-op.
	Commit(srcDir string) (digest string, size int64, err error)

	// Path returns the root directory of a stored layer.
	Path(digest string) (string, error)

	// Exists reports whether a layer is stored.
	Exists(digest string) bool

	// Delete removes a stored layer.
	Delete(digest string) error

	// List returns the digests of all stored layers.
	List() ([]string, error)
}
