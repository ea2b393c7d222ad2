package memory

import (
	"reflect"
	"testing"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "empty content",
			content: "",
			want:    nil,
		},
		{
			name:    "short fragments ignored",
			content: "a of 好 to",
			want:    nil,
		},
		{
			name:    "frequency wins over position",
			content: "alpha beta beta gamma beta",
			want:    []string{"beta", "alpha", "gamma"},
		},
		{
			name:    "latin tokens lowercased",
			content: "PostgreSQL postgresql POSTGRESQL database",
			want:    []string{"postgresql", "database"},
		},
		{
			name:    "chinese runs of two or more",
			content: "团队决定采用PostgreSQL作为主数据库",
			want:    []string{"团队决定采用", "postgresql", "作为主数据库"},
		},
		{
			name:    "capped at five",
			content: "one one one two two three four five six seven",
			want:    []string{"one", "two", "three", "four", "five"},
		},
		{
			name:    "ties keep first appearance order",
			content: "zulu yankee xray whiskey",
			want:    []string{"zulu", "yankee", "xray", "whiskey"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractKeywords(tt.content)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractKeywords(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestExtractKeywordsDeterministic(t *testing.T) {
	const content = "服务重启之后 latency 升高 latency 需要排查连接池"
	first := ExtractKeywords(content)
	for i := 0; i < 10; i++ {
		if got := ExtractKeywords(content); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: ExtractKeywords() = %v, want %v", i, got, first)
		}
	}
}
