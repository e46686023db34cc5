package pyramid

import "github.com/mrjoshuak/go-pyramid/tiletable"

// tileTableBackend reads RGB tiles from a tile table. The reader locks
// only its file stream, so concurrent tile reads decode in parallel.
type tileTableBackend struct {
	table *tiletable.Reader
}

func (b *tileTableBackend) Kind() Kind { return ReadOnlyTileTable }

func (b *tileTableBackend) ReadTile(level, tx, ty int, dst []byte) (bool, error) {
	present, err := b.table.ReadTile(level, tx, ty, dst)
	return present, classify(err)
}

func (b *tileTableBackend) Close() error {
	return b.table.Close()
}
