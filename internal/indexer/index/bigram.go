package index

import "fmt"

// MaxCode is the largest character code that takes part in indexing.
const MaxCode = 127

// Bigram is an ordered pair of adjacent codes, both in [0, MaxCode], packed
// as first<<7 | second.
type Bigram uint16

// NewBigram packs two codes. It reports false when either code is above
// MaxCode, since such a pair is never indexed.
func NewBigram(first, second rune) (Bigram, bool) {
	if first < 0 || second < 0 || first > MaxCode || second > MaxCode {
		return 0, false
	}
	return Bigram(first)<<7 | Bigram(second), true
}

// First returns the leading code.
func (b Bigram) First() byte {
	return byte(b >> 7)
}

// Second returns the trailing code.
func (b Bigram) Second() byte {
	return byte(b & MaxCode)
}

func (b Bigram) String() string {
	return fmt.Sprintf("(%d,%d)", b.First(), b.Second())
}

// Scan walks content one byte at a time and calls fn for every adjacent pair
// of codes that are both <= MaxCode. A code above MaxCode resets the cursor,
// so no bigram spans it.
func Scan(content []byte, fn func(Bigram)) {
	havePrev := false
	var prev byte
	for _, c := range content {
		if c > MaxCode {
			havePrev = false
			continue
		}
		if havePrev {
			fn(Bigram(prev)<<7 | Bigram(c))
		}
		prev = c
		havePrev = true
	}
}
