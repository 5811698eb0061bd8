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

// Package tags turns raw tag payloads into the phrases used as extra search
// sentences.
//
// A payload is a JSON list of tag tokens such as `["ferias_coletivas", "rh_versao_12"]`.
// Tokens are underscore-separated; single-segment tokens and tokens carrying a
// "versao" segment are not descriptive and are discarded.
package tags

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/poiesic/kbindex/core"
)

const (
	segmentSeparator = "_"
	versionMarker    = "versao"
)

// Parse decodes a raw tag payload. An empty or blank payload, as well as a
// JSON null, yields no tags. Anything that is not a JSON list fails with
// core.ErrTagParse.
func Parse(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTagParse, err)
	}
	if items == nil {
		return nil, nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, core.TextValue(item))
	}
	return out, nil
}

// ToPhrases converts raw tag tokens into phrases. Each kept token has its
// segments joined with spaces and '#' removed. Duplicates are dropped, keeping
// first-seen order.
func ToPhrases(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	phrases := make([]string, 0, len(raw))
	for _, tag := range raw {
		segments := strings.Split(tag, segmentSeparator)
		if len(segments) < 2 || containsSegment(segments, versionMarker) {
			continue
		}
		phrase := strings.ReplaceAll(strings.Join(segments, " "), "#", "")
		if _, dup := seen[phrase]; dup {
			continue
		}
		seen[phrase] = struct{}{}
		phrases = append(phrases, phrase)
	}
	return phrases
}

// Extract parses a payload and converts it to phrases.
func Extract(raw string) ([]string, error) {
	tokens, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return ToPhrases(tokens), nil
}

func containsSegment(segments []string, s string) bool {
	for _, seg := range segments {
		if seg == s {
			return true
		}
	}
	return false
}
