// Package rand produces random payloads for test fixtures
package rand

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

var (
	onceSource  sync.Once
	rgen        *rand.Rand
	onceLetters sync.Once
	randMutex   sync.Mutex
	letters     []byte
)

// Bytes returns a random slice of bytes
func Bytes(n int) []byte {
	onceSource.Do(seed)
	buf := make([]byte, n)
	randMutex.Lock()
	_, _ = rgen.Read(buf)
	randMutex.Unlock()
	return buf
}

// LetterBytes returns a random slice of bytes picked in the [0-9]|[a-z] range
func LetterBytes(n int) []byte {
	onceLetters.Do(makeLetters)
	buf := Bytes(n)
	for i, b := range buf {
		buf[i] = letters[b]
	}
	return buf
}

// LetterString returns a random string picked in the [0-9]|[a-z] range
func LetterString(n int) string {
	return string(LetterBytes(n))
}

// Tree returns a random set of files, keyed by slash separated relative path, spread
// over nested directories up to depth levels deep. Sizes are at most maxSize bytes.
func Tree(files, depth, maxSize int) map[string][]byte {
	onceSource.Do(seed)
	res := make(map[string][]byte, files)
	for len(res) < files {
		randMutex.Lock()
		levels := rgen.Intn(depth + 1)
		size := rgen.Intn(maxSize + 1)
		randMutex.Unlock()

		parts := make([]string, 0, levels+1)
		for i := 0; i < levels; i++ {
			parts = append(parts, "d"+strconv.Itoa(i)+"-"+LetterString(3))
		}
		parts = append(parts, LetterString(8)+".dat")
		res[filepath.ToSlash(filepath.Join(parts...))] = Bytes(size)
	}
	return res
}

func seed() {
	src := rand.NewSource(time.Now().UnixNano())
	rgen = rand.New(src) // #nosec
}

func makeLetters() {
	// adds "a" to pad over 256 locations (0-9 U a-z makes up to 252 only and we want to cover the range of uint8)
	letters = bytes.Repeat([]byte("abcdefghijklmnopqrstuvwxyz0123456789a"), 7)
}
