package command

// History keeps submitted lines newest first for console recall.
type History struct {
	lines []string
	pos   int // -1 while not browsing
	max   int
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 64
	}
	return &History{pos: -1, max: limit}
}

func (h *History) Push(line string) {
	if line == "" {
		return
	}
	h.lines = append([]string{line}, h.lines...)
	if len(h.lines) > h.max {
		h.lines = h.lines[:h.max]
	}
	h.pos = -1
}

// Older steps back one entry, stopping at the oldest.
func (h *History) Older() (string, bool) {
	if len(h.lines) == 0 {
		return "", false
	}
	if h.pos < len(h.lines)-1 {
		h.pos++
	}
	return h.lines[h.pos], true
}

// Newer steps forward; past the newest entry it returns an empty line.
func (h *History) Newer() (string, bool) {
	if h.pos <= 0 {
		h.pos = -1
		return "", false
	}
	h.pos--
	return h.lines[h.pos], true
}

func (h *History) Len() int { return len(h.lines) }
