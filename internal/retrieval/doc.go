// Package retrieval answers nearest-neighbor queries over embedded
// document chunks. Ingestion extracts text from a source, splits it into
// fixed-size overlapping chunks, embeds each chunk, and persists both
// text and vector. Queries embed the query text and rank chunks by
// cosine similarity with a deterministic tie-break (documentID, then
// chunk offset).
//
// The default HashEmbedder is a hashed bag-of-words model: local,
// deterministic, and cheap. Swapping in a network-backed embedder only
// requires implementing Embedder and running Rebuild.
package retrieval
