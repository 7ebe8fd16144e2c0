package repository

import "github.com/dgraph-io/badger/v4"

type DBRepository interface {
	View(fn func(txn *badger.Txn) error) error
	Update(fn func(txn *badger.Txn) error) error
	Close() error
}

type BadgerDBRepository struct {
	db *badger.DB
}

func NewBadgerDBRepository(db *badger.DB) DBRepository {
	return &BadgerDBRepository{db: db}
}

func (r *BadgerDBRepository) View(fn func(txn *badger.Txn) error) error {
	return r.db.View(fn)
}

func (r *BadgerDBRepository) Update(fn func(txn *badger.Txn) error) error {
	return r.db.Update(fn)
}

func (r *BadgerDBRepository) Close() error {
	return r.db.Close()
}

// ScanPrefix visits every value stored under prefix within one read
// transaction. Both the cache index and the image registry keep their
// records under a fixed key prefix, so listing goes through here.
func ScanPrefix(txn *badger.Txn, prefix []byte, visit func(key, value []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		err := item.Value(func(val []byte) error {
			return visit(item.KeyCopy(nil), val)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
