package normalize

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"
)

//go:embed stopwords_pt.txt
var defaultStopwordsText string

// defaultStopwords is parsed once at init.
var defaultStopwords = mustLoadStopwords(defaultStopwordsText)

func mustLoadStopwords(text string) Stopwords {
	s, err := LoadStopwords(strings.NewReader(text))
	if err != nil {
		panic(fmt.Sprintf("normalize: invalid embedded stopword list: %v", err))
	}
	if len(s) == 0 {
		panic("normalize: embedded stopword list is empty")
	}
	return s
}

// Stopwords is a set of lower-case ASCII tokens removed in advanced mode.
type Stopwords map[string]struct{}

// NewStopwords builds a set from words. Words are transliterated and
// lower-cased so they match normalized tokens.
func NewStopwords(words ...string) Stopwords {
	s := make(Stopwords, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(Transliterate(w)))
		if w != "" {
			s[w] = struct{}{}
		}
	}
	return s
}

// Contains reports whether tok is a stopword. A nil set contains nothing.
func (s Stopwords) Contains(tok string) bool {
	_, ok := s[tok]
	return ok
}

// LoadStopwords reads one word per line. Blank lines and lines starting with '#' are skipped.
func LoadStopwords(r io.Reader) (Stopwords, error) {
	var words []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return NewStopwords(words...), nil
}

// LoadStopwordsFile reads a stopword list from path.
func LoadStopwordsFile(path string) (Stopwords, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stopwords file: %w", err)
	}
	defer f.Close()
	return LoadStopwords(f)
}

// DefaultStopwords returns a copy of the built-in Portuguese list.
func DefaultStopwords() Stopwords {
	return maps.Clone(defaultStopwords)
}

// ForMode returns the stopwords used by mode: none for basic, the file at
// path (or the built-in list when path is empty) for advanced.
func ForMode(mode Mode, path string) (Stopwords, error) {
	if mode != ModeAdvanced {
		return Stopwords{}, nil
	}
	if path == "" {
		return DefaultStopwords(), nil
	}
	return LoadStopwordsFile(path)
}
