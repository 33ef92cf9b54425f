package pipeline

import (
	"strings"
	"unicode"
)

// pageBreak 是 Tika 等提取器在页与页之间输出的换页符。
const pageBreak = '\f'

// Segment 是切块后的一段文本及其所在页码（从 1 开始）。
type Segment struct {
	Text string
	Page int
}

// SplitText 先按换页符分页，再对每页按指定大小和重叠进行切分。只含空白的块会被丢弃。
func SplitText(text string, chunkSize, chunkOverlap int) []Segment {
	var segments []Segment
	for i, page := range strings.Split(text, string(pageBreak)) {
		for _, chunk := range splitRunes(page, chunkSize, chunkOverlap) {
			if strings.TrimFunc(chunk, unicode.IsSpace) == "" {
				continue
			}
			segments = append(segments, Segment{Text: chunk, Page: i + 1})
		}
	}
	return segments
}

// splitRunes 将长文本按指定大小和重叠进行切分。
func splitRunes(text string, chunkSize int, chunkOverlap int) []string {
	if chunkSize <= 0 {
		return nil
	}
	if chunkSize <= chunkOverlap || chunkOverlap < 0 {
		// Fallback to simple split if overlap is invalid
		return simpleSplit(text, chunkSize)
	}

	var chunks []string
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := chunkSize - chunkOverlap
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func simpleSplit(text string, chunkSize int) []string {
	var chunks []string
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
