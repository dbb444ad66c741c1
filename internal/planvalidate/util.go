package planvalidate

import "crypto/sha256"

func sha256Sum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

var statusSeverity = map[Status]int{
	StatusOK:      0,
	StatusSkipped: 0,
	StatusWarn:    1,
	StatusMissing: 2,
	StatusError:   3,
}

// maxStatus returns whichever of a, b is more severe, used when a single
// plan accumulates several independent checks.
func maxStatus(a, b Status) Status {
	if statusSeverity[b] > statusSeverity[a] {
		return b
	}
	return a
}
