package percolate

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/percolate/blobstore"
	"github.com/hupe1980/percolate/index"
	"github.com/hupe1980/percolate/internal/hash"
	"github.com/hupe1980/percolate/resource"
)

// Snapshot layout, zstd compressed:
//
//	magic "PRCL" | version u8 | count uvarint
//	count × (id len uvarint | id | source len uvarint | source)
//	CRC32C of everything above, u32 little endian
const (
	snapshotMagic   = "PRCL"
	snapshotVersion = 1
)

// Snapshot writes every stored document to name in store. Stored queries are
// re-analyzed on Restore, so snapshots survive changes to the analysis.
func (p *Percolator) Snapshot(ctx context.Context, store blobstore.BlobStore, name string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	entries := p.sources()
	err := p.writeSnapshot(ctx, store, name, entries)
	p.opts.logger.LogSnapshot(ctx, name, len(entries), err)
	return err
}

func (p *Percolator) sources() []Source {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := p.idx.IDs()
	out := make([]Source, 0, len(ids))
	for _, id := range ids {
		doc, ok := p.idx.Get(id)
		if !ok {
			continue
		}
		out = append(out, Source{ID: id, Document: doc.Stored[SourceField]})
	}
	return out
}

func (p *Percolator) writeSnapshot(ctx context.Context, store blobstore.BlobStore, name string, entries []Source) (err error) {
	w, err := store.Create(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			blobstore.Discard(w)
		}
	}()

	enc, err := zstd.NewWriter(resource.NewRateLimitedWriter(ctx, w, p.opts.resources))
	if err != nil {
		return err
	}
	crc := hash.NewCRC32C()
	out := io.MultiWriter(enc, crc)

	var scratch [binary.MaxVarintLen64]byte
	writeUvarint := func(v uint64) error {
		_, err := out.Write(scratch[:binary.PutUvarint(scratch[:], v)])
		return err
	}
	writeBytes := func(b []byte) error {
		if err := writeUvarint(uint64(len(b))); err != nil {
			return err
		}
		_, err := out.Write(b)
		return err
	}

	if _, err := out.Write(append([]byte(snapshotMagic), snapshotVersion)); err != nil {
		_ = enc.Close()
		return err
	}
	if err := writeUvarint(uint64(len(entries))); err != nil {
		_ = enc.Close()
		return err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			_ = enc.Close()
			return err
		}
		if err := writeBytes([]byte(e.ID)); err != nil {
			_ = enc.Close()
			return err
		}
		if err := writeBytes(e.Document); err != nil {
			_ = enc.Close()
			return err
		}
	}

	var trailer [4]byte
	binary.LittleEndian.PutUint32(trailer[:], crc.Sum32())
	if _, err := enc.Write(trailer[:]); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := w.Sync(); err != nil {
		return err
	}
	return w.Close()
}

// Restore replaces every stored query with the contents of the snapshot name in
// store. All stored documents are re-registered; if any is invalid or rejected the
// Percolator is left unchanged.
func (p *Percolator) Restore(ctx context.Context, store blobstore.BlobStore, name string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	n, err := p.restore(ctx, store, name)
	p.opts.logger.LogRestore(ctx, name, n, err)
	return err
}

func (p *Percolator) restore(ctx context.Context, store blobstore.BlobStore, name string) (int, error) {
	payload, err := p.readSnapshot(ctx, store, name)
	if err != nil {
		return 0, err
	}
	entries, err := decodeSnapshot(payload)
	if err != nil {
		return 0, err
	}

	errs := make([]error, len(entries))
	docs := p.prepareAll(ctx, entries, errs)
	if err := errors.Join(errs...); err != nil {
		return 0, fmt.Errorf("restore %q: %w", name, err)
	}

	idx := index.New()
	for i, doc := range docs {
		if err := idx.Put(entries[i].ID, doc); err != nil {
			return 0, fmt.Errorf("restore %q: %w", name, rejected(entries[i].ID, err))
		}
	}

	p.mu.Lock()
	p.idx = idx
	p.mu.Unlock()
	if p.queries != nil {
		p.queries.Purge()
	}
	return len(entries), nil
}

func (p *Percolator) readSnapshot(ctx context.Context, store blobstore.BlobStore, name string) ([]byte, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	if blob.Size() == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrInvalidSnapshot)
	}
	r, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, err
	}
	defer r.Close()

	dec, err := zstd.NewReader(resource.NewRateLimitedReader(ctx, r, p.opts.resources))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	payload, err := io.ReadAll(dec)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	return payload, nil
}

func decodeSnapshot(payload []byte) ([]Source, error) {
	if len(payload) < len(snapshotMagic)+1+4 {
		return nil, fmt.Errorf("%w: truncated", ErrInvalidSnapshot)
	}
	body, trailer := payload[:len(payload)-4], payload[len(payload)-4:]
	if got, want := hash.CRC32C(body), binary.LittleEndian.Uint32(trailer); got != want {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidSnapshot)
	}
	if !bytes.HasPrefix(body, []byte(snapshotMagic)) {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidSnapshot)
	}
	body = body[len(snapshotMagic):]
	if v := body[0]; v != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, v)
	}
	body = body[1:]

	readBytes := func() ([]byte, error) {
		n, k := binary.Uvarint(body)
		if k <= 0 || n > uint64(len(body)-k) {
			return nil, fmt.Errorf("%w: truncated entry", ErrInvalidSnapshot)
		}
		b := body[k : k+int(n)]
		body = body[k+int(n):]
		return b, nil
	}

	count, k := binary.Uvarint(body)
	if k <= 0 {
		return nil, fmt.Errorf("%w: bad entry count", ErrInvalidSnapshot)
	}
	body = body[k:]
	// Every entry takes at least two bytes.
	if count > uint64(len(body))/2 {
		return nil, fmt.Errorf("%w: entry count %d exceeds payload", ErrInvalidSnapshot, count)
	}

	entries := make([]Source, 0, count)
	for range count {
		id, err := readBytes()
		if err != nil {
			return nil, err
		}
		src, err := readBytes()
		if err != nil {
			return nil, err
		}
		entries = append(entries, Source{ID: string(id), Document: bytes.Clone(src)})
	}
	if len(body) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidSnapshot, len(body))
	}
	return entries, nil
}
