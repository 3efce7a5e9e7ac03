package decisionlog

// corrupt replaces the entry for seq with one carrying a different sequence
// number.
func (l *Log) corrupt(seq uint64) {
	e := *l.slots[l.index(seq)].Load()
	e.Seq += 1000
	l.slots[l.index(seq)].Store(&e)
}
