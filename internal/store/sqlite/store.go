// Package sqlite persists klines, decisions and backtest runs.
package sqlite

import "errors"

// Store pairs a Writer and a Reader on the same file. It satisfies
// model.KlineStore.
type Store struct {
	*Writer
	*Reader
}

// Open creates the schema and opens both connections.
func Open(path string) (*Store, error) {
	w, err := New(WriterConfig{DBPath: path})
	if err != nil {
		return nil, err
	}
	r, err := NewReader(path)
	if err != nil {
		w.Close()
		return nil, err
	}
	return &Store{Writer: w, Reader: r}, nil
}

// Close closes both connections.
func (s *Store) Close() error {
	return errors.Join(s.Reader.Close(), s.Writer.Close())
}
