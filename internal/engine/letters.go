package engine

type Letter string

// Word is the order letters are handed out in. Collecting all of it loses
// the battle.
var Word = []Letter{"S", "K", "A", "T", "E"}

func nextLetter(have []Letter) (Letter, bool) {
	if len(have) >= len(Word) {
		return "", false
	}
	return Word[len(have)], true
}

func spelledOut(have []Letter) bool {
	return len(have) >= len(Word)
}
