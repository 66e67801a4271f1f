package wechat

import "strings"

// Chunking modes for outbound text.
const (
	ChunkModeLine   = "line"   // prefer breaking at newlines
	ChunkModeLength = "length" // hard cut at the limit
)

// SplitMessage splits text into send-sized chunks. Whitespace-only input
// yields no chunks. The split is deterministic: the same input always
// produces the same chunk sequence.
//
// In line mode a chunk breaks at the last newline inside the limit when
// that newline sits past the halfway point, so paragraphs stay together
// without producing tiny fragments. Length mode cuts at the limit exactly.
func SplitMessage(text string, limit int, mode string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= limit {
			chunks = append(chunks, text)
			break
		}

		cutAt := limit
		if mode != ChunkModeLength {
			if idx := strings.LastIndex(text[:limit], "\n"); idx > limit/2 {
				cutAt = idx + 1
			}
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}
