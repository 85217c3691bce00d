// ABOUTME: Retrieval chunk persistence with float32 vector encoding
// ABOUTME: Chunks are append-friendly; full rebuild deletes and re-ingests per document

package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// ReplaceChunks deletes any existing chunks for the document and inserts
// the new set in one transaction.
func (s *SQLiteStore) ReplaceChunks(ctx context.Context, documentID string, chunks []*Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning chunk replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("deleting old chunks: %w", err)
	}

	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (document_id, chunk_offset, content, vector) VALUES (?, ?, ?, ?)`,
			c.DocumentID, c.Offset, c.Content, encodeVector(c.Vector),
		); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Offset, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunk replace: %w", err)
	}

	s.logger.Debug("chunks replaced", "document_id", documentID, "count", len(chunks))
	return nil
}

// AllChunks returns every stored chunk ordered by document id then offset.
func (s *SQLiteStore) AllChunks(ctx context.Context) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, chunk_offset, content, vector FROM chunks ORDER BY document_id, chunk_offset`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		c := &Chunk{}
		var blob []byte
		if err := rows.Scan(&c.DocumentID, &c.Offset, &c.Content, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Vector, err = decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding chunk vector: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// DeleteDocument removes all chunks for a document.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("deleting document chunks: %w", err)
	}
	return nil
}

// encodeVector packs a float32 slice into little-endian bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks little-endian bytes into a float32 slice.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
