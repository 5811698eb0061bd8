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

package ingestion

import (
	"strings"

	"github.com/poiesic/kbindex/core"
)

// Session carries the defaults applied to partial staging paths.
type Session struct {
	Organization string
	Environment  string
}

// StagingPath identifies one staging table.
type StagingPath struct {
	Organization string
	Environment  string
	Connector    string
	Staging      string
}

// ParseStagingPath parses "[org/][env/]connector/staging". Segments are
// right-aligned: two segments are connector and staging, three add the
// environment, four add the organization. Missing organization and
// environment come from session. Anything else fails with core.ErrConfig.
func ParseStagingPath(spec string, session Session) (StagingPath, error) {
	segments := strings.Split(strings.Trim(strings.TrimSpace(spec), "/"), "/")
	if len(segments) < 2 || len(segments) > 4 {
		return StagingPath{}, core.ConfigErrorf("staging_name %q must have 2 to 4 segments: [org/][env/]connector/staging", spec)
	}
	for _, s := range segments {
		if strings.TrimSpace(s) == "" {
			return StagingPath{}, core.ConfigErrorf("staging_name %q has an empty segment", spec)
		}
	}

	p := StagingPath{
		Organization: session.Organization,
		Environment:  session.Environment,
	}
	n := len(segments)
	p.Staging = segments[n-1]
	p.Connector = segments[n-2]
	if n >= 3 {
		p.Environment = segments[n-3]
	}
	if n == 4 {
		p.Organization = segments[0]
	}
	return p, nil
}

// String returns the fully qualified form, omitting empty leading segments.
func (p StagingPath) String() string {
	parts := make([]string, 0, 4)
	for _, s := range []string{p.Organization, p.Environment} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	parts = append(parts, p.Connector, p.Staging)
	return strings.Join(parts, "/")
}
