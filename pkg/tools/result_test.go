// Copyright 2025 Tom Barlow
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

package tools

import "testing"

func TestDecodeTextJSONObject(t *testing.T) {
	res := DecodeText(`{"repo": "octo/hello", "id": 7}`)

	m, ok := res.Value.(map[string]interface{})
	if !ok {
		t.Fatalf("expected decoded map, got %T", res.Value)
	}
	if m["repo"] != "octo/hello" {
		t.Errorf("repo = %v", m["repo"])
	}
}

func TestDecodeTextJSONArray(t *testing.T) {
	res := DecodeText(`[1, 2, 3]`)

	arr, ok := res.Value.([]interface{})
	if !ok {
		t.Fatalf("expected decoded array, got %T", res.Value)
	}
	if len(arr) != 3 {
		t.Errorf("len = %d", len(arr))
	}
}

func TestDecodeTextPlainString(t *testing.T) {
	res := DecodeText("just words")
	if res.Value != "just words" {
		t.Errorf("expected raw string kept, got %v", res.Value)
	}
}

func TestDecodeTextInvalidJSONKeptAsString(t *testing.T) {
	res := DecodeText("{not json")
	if res.Value != "{not json" {
		t.Errorf("expected raw string for broken JSON, got %v", res.Value)
	}
}
