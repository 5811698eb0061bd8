// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package normalize

import (
	"strings"
	"unicode/utf8"

	"github.com/mozillazg/go-unidecode"
	"github.com/poiesic/kbindex/core"
	"golang.org/x/text/encoding/charmap"
)

// Mode selects how much cleanup Text applies.
type Mode int

const (
	// ModeBasic repairs encoding and transliterates to ASCII.
	ModeBasic Mode = iota
	// ModeAdvanced additionally strips symbols, folds case and removes stopwords.
	ModeAdvanced
)

// ParseMode parses "Basic" or "Advanced", ignoring case. The empty string is Basic.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "basic":
		return ModeBasic, nil
	case "advanced":
		return ModeAdvanced, nil
	}
	return ModeBasic, core.ConfigErrorf("unknown preproc_mode %q: must be Basic or Advanced", s)
}

func (m Mode) String() string {
	if m == ModeAdvanced {
		return "Advanced"
	}
	return "Basic"
}

// maxRepairPasses bounds how many layers of double encoding are undone.
const maxRepairPasses = 3

// RepairEncoding fixes text that was decoded with the wrong charset.
//
// Bytes that are not part of valid UTF-8 are read as Windows-1252; valid
// runes around them are kept. Valid UTF-8 that becomes shorter, still valid
// UTF-8 when re-encoded as Windows-1252 is mojibake ("cafÃ©" -> "café") and
// is replaced by the decoded form.
func RepairEncoding(s string) string {
	if !utf8.ValidString(s) {
		s = decodeStrayBytes(s)
	}

	enc := charmap.Windows1252.NewEncoder()
	for i := 0; i < maxRepairPasses && !isASCII(s); i++ {
		raw, err := enc.String(s)
		if err != nil || raw == s || !utf8.ValidString(raw) {
			break
		}
		if utf8.RuneCountInString(raw) >= utf8.RuneCountInString(s) {
			break
		}
		s = raw
	}
	return s
}

// decodeStrayBytes replaces each invalid UTF-8 byte with its Windows-1252 rune.
func decodeStrayBytes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/2)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteRune(charmap.Windows1252.DecodeByte(s[i]))
		} else {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

// Transliterate replaces accented and non-Latin characters with their closest
// ASCII equivalent ("férias" -> "ferias").
func Transliterate(s string) string {
	if isASCII(s) {
		return s
	}
	return unidecode.Unidecode(s)
}

// Text normalizes text. Every step is total: any input yields a string.
//
//  1. repair mis-encoded characters
//  2. transliterate to ASCII
//  3. advanced only: replace everything outside [0-9a-zA-Z] with spaces, lower-case
//     tokens that are not acronyms, drop stopwords
func Text(text string, stopwords Stopwords, mode Mode) string {
	s := Transliterate(RepairEncoding(text))
	if mode != ModeAdvanced {
		return s
	}

	s = strings.Map(func(r rune) rune {
		if isAlnum(r) {
			return r
		}
		return ' '
	}, s)

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, tok := range fields {
		if !isAcronym(tok) {
			tok = strings.ToLower(tok)
		}
		if stopwords.Contains(tok) {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// Normalizer binds a mode and stopword set for repeated use.
type Normalizer struct {
	mode      Mode
	stopwords Stopwords
}

// New creates a Normalizer. stopwords may be nil.
func New(mode Mode, stopwords Stopwords) *Normalizer {
	return &Normalizer{mode: mode, stopwords: stopwords}
}

// Normalize applies Text with the bound mode and stopwords.
func (n *Normalizer) Normalize(text string) string {
	return Text(text, n.stopwords, n.mode)
}

// Mode returns the bound mode.
func (n *Normalizer) Mode() Mode {
	return n.mode
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func isAlnum(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// isAcronym reports whether every letter of tok is upper-case. Tokens without
// letters are not acronyms.
func isAcronym(tok string) bool {
	hasLetter := false
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		if c >= 'a' && c <= 'z' {
			return false
		}
		if c >= 'A' && c <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}
