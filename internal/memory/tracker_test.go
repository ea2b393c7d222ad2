package memory

import (
	"reflect"
	"testing"
)

func TestSuggestPatterns(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "one pattern per keyword",
			query: "PostgreSQL 连接池调优 tips",
			want:  []string{"%postgresql%", "%连接池调优%", "%tips%"},
		},
		{
			name:  "capped at three keywords",
			query: "alpha beta gamma delta epsilon",
			want:  []string{"%alpha%", "%beta%", "%gamma%"},
		},
		{
			name:  "no extractable keywords falls back to the raw query",
			query: "a b",
			want:  []string{"%a b%"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := suggestPatterns(tt.query); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("suggestPatterns(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}
}
