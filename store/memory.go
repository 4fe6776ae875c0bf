package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"
)

// Memory is an in-process Store. Documents are kept JSON-encoded, so values
// read back never alias values written.
type Memory struct {
	mu       sync.RWMutex
	data     memData
	writeErr error
}

var _ Store = (*Memory)(nil)

type memData struct {
	docs map[Collection]map[Key][]byte
	seq  map[Collection]int64
}

func NewMemory() *Memory {
	m := &Memory{data: memData{
		docs: make(map[Collection]map[Key][]byte),
		seq:  make(map[Collection]int64),
	}}
	for _, c := range Collections {
		m.data.docs[c] = make(map[Key][]byte)
	}
	return m
}

// FailWrites makes every following write fail with err, as a full disk
// would. A nil err restores normal operation.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

func (m *Memory) Put(ctx context.Context, c Collection, key Key, value any) (Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return "", storageErr("put", c, key, m.writeErr)
	}
	return m.data.put(c, key, value)
}

func (m *Memory) Get(ctx context.Context, c Collection, key Key, dst any) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.get(c, key, dst)
}

func (m *Memory) GetAll(ctx context.Context, c Collection, fn func(key Key, decode Decoder) error) error {
	m.mu.RLock()
	entries, err := m.data.snapshot(c)
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	return iterate(c, entries, fn)
}

func (m *Memory) Delete(ctx context.Context, c Collection, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return storageErr("delete", c, key, m.writeErr)
	}
	return m.data.delete(c, key)
}

// Update applies fn to a private copy and swaps it in on success.
func (m *Memory) Update(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{data: m.data.clone(), writeErr: m.writeErr}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storageErr("commit", "", "", err)
	}
	m.data = tx.data
	return nil
}

func (m *Memory) Close() error {
	return nil
}

type memTx struct {
	data     memData
	writeErr error
}

func (t *memTx) Put(ctx context.Context, c Collection, key Key, value any) (Key, error) {
	if t.writeErr != nil {
		return "", storageErr("put", c, key, t.writeErr)
	}
	return t.data.put(c, key, value)
}

func (t *memTx) Get(ctx context.Context, c Collection, key Key, dst any) (bool, error) {
	return t.data.get(c, key, dst)
}

func (t *memTx) GetAll(ctx context.Context, c Collection, fn func(key Key, decode Decoder) error) error {
	entries, err := t.data.snapshot(c)
	if err != nil {
		return err
	}
	return iterate(c, entries, fn)
}

func (t *memTx) Delete(ctx context.Context, c Collection, key Key) error {
	if t.writeErr != nil {
		return storageErr("delete", c, key, t.writeErr)
	}
	return t.data.delete(c, key)
}

func (d memData) clone() memData {
	out := memData{
		docs: make(map[Collection]map[Key][]byte, len(d.docs)),
		seq:  make(map[Collection]int64, len(d.seq)),
	}
	for c, docs := range d.docs {
		cp := make(map[Key][]byte, len(docs))
		for k, v := range docs {
			cp[k] = v
		}
		out.docs[c] = cp
	}
	for c, n := range d.seq {
		out.seq[c] = n
	}
	return out
}

func (d memData) put(c Collection, key Key, value any) (Key, error) {
	if err := checkKey("put", c, key); err != nil {
		return "", err
	}
	doc, err := json.Marshal(value)
	if err != nil {
		return "", storageErr("put", c, key, fmt.Errorf("encode: %w", err))
	}

	if key == "" {
		d.seq[c]++
		key = IntKey(d.seq[c])
	} else if c.AutoIncrement() {
		// explicit keys advance the sequence like AUTOINCREMENT does
		id, _ := key.Int64()
		if id > d.seq[c] {
			d.seq[c] = id
		}
	}
	d.docs[c][key] = doc
	return key, nil
}

func (d memData) get(c Collection, key Key, dst any) (bool, error) {
	if err := checkKey("get", c, key); err != nil {
		return false, err
	}
	doc, ok := d.docs[c][key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(doc, dst); err != nil {
		return false, storageErr("get", c, key, fmt.Errorf("decode: %w", err))
	}
	return true, nil
}

func (d memData) delete(c Collection, key Key) error {
	if err := checkKey("delete", c, key); err != nil {
		return err
	}
	delete(d.docs[c], key)
	return nil
}

type memEntry struct {
	key Key
	doc []byte
}

func (d memData) snapshot(c Collection) ([]memEntry, error) {
	if !c.valid() {
		return nil, storageErr("get_all", c, "", ErrUnknownCollection)
	}
	entries := make([]memEntry, 0, len(d.docs[c]))
	for k, v := range d.docs[c] {
		entries = append(entries, memEntry{k, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if c.AutoIncrement() {
			a, _ := entries[i].key.Int64()
			b, _ := entries[j].key.Int64()
			return a < b
		}
		return entries[i].key < entries[j].key
	})
	return entries, nil
}

func iterate(c Collection, entries []memEntry, fn func(key Key, decode Decoder) error) error {
	for _, e := range entries {
		decode := func(dst any) error {
			if err := json.Unmarshal(e.doc, dst); err != nil {
				return storageErr("get_all", c, e.key, fmt.Errorf("decode: %w", err))
			}
			return nil
		}
		if err := fn(e.key, decode); err != nil {
			return err
		}
	}
	return nil
}
