package chain

// journalEntry undoes a single state mutation.
type journalEntry func()

// journal records undo entries in mutation order. A snapshot is the journal
// length at the time it was taken.
type journal struct {
	entries []journalEntry
}

func (j *journal) append(undo journalEntry) {
	j.entries = append(j.entries, undo)
}

func (j *journal) length() int {
	return len(j.entries)
}

// revert undoes every entry past revision, newest first.
func (j *journal) revert(revision int) {
	for i := len(j.entries) - 1; i >= revision; i-- {
		j.entries[i]()
	}
	j.entries = j.entries[:revision]
}

// reset drops all entries; called when the outermost scope commits.
func (j *journal) reset() {
	j.entries = j.entries[:0]
}
