/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

// Role names a text region of a rendered page.
type Role string

const (
	RoleHeader Role = "header"
	RoleTitle  Role = "title"
	RoleBody   Role = "body"
	RoleFooter Role = "footer"
)

// Style pairs a font with extra leading in pixels.
type Style struct {
	Font    FontSpec
	Leading float32
}

var builtinStyles = map[Role]Style{
	RoleHeader: {Font: FontSpec{Family: "Sans", SizePt: 10, Weight: 400}, Leading: 2},
	RoleTitle:  {Font: FontSpec{Family: "Sans", SizePt: 16, Weight: 700}, Leading: 4},
	RoleBody:   {Font: FontSpec{Family: "Sans", SizePt: 12, Weight: 400}, Leading: 3},
	RoleFooter: {Font: FontSpec{Family: "Sans", SizePt: 9, Weight: 400, Italic: true}},
}

// StyleFor returns the builtin style for role, falling back to RoleBody.
func StyleFor(r Role) Style {
	if s, ok := builtinStyles[r]; ok {
		return s
	}
	return builtinStyles[RoleBody]
}
