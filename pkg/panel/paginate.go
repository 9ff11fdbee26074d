package panel

// Paginate splits text into pages of size runes. The last page may be shorter. A
// non-positive size yields a single page.
func Paginate(text string, size int) []string {
	if text == "" {
		return []string{}
	}
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}
	pages := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		pages = append(pages, string(runes[start:end]))
	}
	return pages
}
