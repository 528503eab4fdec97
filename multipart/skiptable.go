package multipart

import "bytes"

// skipTable is a Boyer-Moore-Horspool bad-character table over the boundary.
// Scanning part data byte-at-a-time dominates runtime on CRLF-dense payloads,
// so the common case skips by the table entry of the window's last byte.
type skipTable [256]int

func newSkipTable(needle []byte) (table skipTable) {
	n := len(needle)

	for i := range table {
		table[i] = n
	}

	for i := 0; i < n-1; i++ {
		table[needle[i]] = n - 1 - i
	}

	return table
}

// find returns the index of the first occurrence of needle in data at or
// after from, or -1.
func (t *skipTable) find(data, needle []byte, from int) int {
	n := len(needle)
	last := n - 1

	for i := from + last; i < len(data); i += t[data[i]] {
		if data[i] == needle[last] && bytes.Equal(data[i-last:i], needle[:last]) {
			return i - last
		}
	}

	return -1
}
