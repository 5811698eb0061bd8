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

package core

import (
	"fmt"
)

// ValidateRoleMap validates a RoleMap according to domain rules.
//
// Validation rules:
//   - id must reference at least one column
//   - search must reference at least one column
//
// NOT validated (optional roles):
//   - content, filter and tags may be empty
func ValidateRoleMap(m RoleMap) error {
	if m.ID.IsEmpty() {
		return fmt.Errorf("%w: %w", ErrConfig, ErrMissingIDRole)
	}
	if m.Search.IsEmpty() {
		return fmt.Errorf("%w: %w", ErrConfig, ErrMissingSearchRole)
	}
	return nil
}

// ValidateSpecificity checks that a specificity threshold is a fraction in (0, 1].
// NaN is rejected.
func ValidateSpecificity(threshold float64) error {
	if !(threshold > 0 && threshold <= 1) {
		return fmt.Errorf("%w: specificity threshold must be in (0, 1], got %v", ErrConfig, threshold)
	}
	return nil
}
