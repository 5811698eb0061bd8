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

// Package expand denormalizes input records into search units.
//
// Every record yields one unit per search column. Tag columns contribute one
// extra unit per tag phrase, except for phrases shared by too large a share of
// the records: those do not help tell records apart and are filtered out.
// Filtering is two-pass: all candidate tag rows are counted first, then
// re-scanned against the frozen counts.
package expand
