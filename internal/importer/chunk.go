package importer

// chunkSelections partitions a selection into delivery chunks of the given
// size. A size of zero or less means one chunk holding everything.
func chunkSelections(sel []Selection, size int) [][]Selection {
	if len(sel) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]Selection{sel}
	}

	var chunks [][]Selection
	for start := 0; start < len(sel); start += size {
		end := start + size
		if end > len(sel) {
			end = len(sel)
		}
		chunks = append(chunks, sel[start:end])
	}
	return chunks
}
