// ABOUTME: Fixed-size overlapping text chunker for index ingestion
// ABOUTME: Splits extracted document text into rune-bounded windows

package retrieval

// ChunkText splits text into windows of at most size runes, each window
// overlapping the previous by overlap runes. Overlap keeps phrases that
// straddle a boundary findable from both sides.
func ChunkText(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
