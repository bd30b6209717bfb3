package annotate

import "github.com/kailas-cloud/newsdigest/internal/domain"

// DefaultChunkSize is the number of items sent to the model in one call.
const DefaultChunkSize = 20

// Chunk splits items into contiguous batches of at most size items.
// Each returned item is a copy: LocalIndex is its offset inside the chunk and
// Position its offset in the input. size <= 0 uses DefaultChunkSize.
func Chunk(items []domain.Item, size int) [][]domain.Item {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(items) == 0 {
		return nil
	}

	chunks := make([][]domain.Item, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunk := make([]domain.Item, end-start)
		for i := range chunk {
			chunk[i] = items[start+i]
			chunk[i].LocalIndex = i
			chunk[i].Position = start + i
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// reindex copies items with LocalIndex reassigned to 0..k-1, keeping Position.
func reindex(items []domain.Item) []domain.Item {
	out := make([]domain.Item, len(items))
	for i, it := range items {
		out[i] = it
		out[i].LocalIndex = i
	}
	return out
}
