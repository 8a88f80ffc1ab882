package server

const uidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// uidGenerator hands out TS6-style UIDs: the SID followed by six characters,
// the first of which is a letter.
type uidGenerator struct {
	sid  string
	next [6]int
}

func newUIDGenerator(sid string) *uidGenerator {
	return &uidGenerator{sid: sid}
}

func (g *uidGenerator) Next() string {
	buf := make([]byte, 0, len(g.sid)+len(g.next))
	buf = append(buf, g.sid...)
	for _, i := range g.next {
		buf = append(buf, uidAlphabet[i])
	}

	// Increment from the right; the first position stays within the letters.
	for pos := len(g.next) - 1; pos >= 0; pos-- {
		limit := len(uidAlphabet)
		if pos == 0 {
			limit = 26
		}
		g.next[pos]++
		if g.next[pos] < limit {
			break
		}
		g.next[pos] = 0
	}
	return string(buf)
}
