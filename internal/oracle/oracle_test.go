package oracle

import (
	"strings"
	"testing"
)

func TestCleanCode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "bare code untouched",
			raw:  "const x = 1;\nconsole.log(x);",
			want: "const x = 1;\nconsole.log(x);",
		},
		{
			name: "fenced with language tag",
			raw:  "```js\nconst x = 1;\n```",
			want: "const x = 1;",
		},
		{
			name: "fenced without language tag",
			raw:  "```\nconst x = 1;\n```",
			want: "const x = 1;",
		},
		{
			name: "missing closing fence",
			raw:  "```js\nconst x = 1;",
			want: "const x = 1;",
		},
		{
			name: "surrounding whitespace",
			raw:  "\n\n```python\nprint('ok')\n```\n\n",
			want: "print('ok')",
		},
		{
			name: "backticks inside code are kept",
			raw:  "```js\nconst s = `template`;\n```",
			want: "const s = `template`;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanCode(tt.raw); got != tt.want {
				t.Errorf("CleanCode(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	req := &Request{
		Service:  "pocketbase",
		Language: "js",
		Excerpt:  "error: SyntaxError in hooks/main.pb.js",
		Source:   "routerAdd('GET', '/ping', (c) => {)",
	}

	prompt := buildPrompt(req)
	for _, want := range []string{"pocketbase", req.Excerpt, req.Source, "no markdown code fences"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
