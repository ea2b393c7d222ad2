package memory

import (
	"math"
	"testing"
	"time"
)

func TestSimilarity(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		a, b Entry
		want float64
	}{
		{
			name: "nothing in common",
			a:    Entry{Category: "tech", Content: "alpha", Keywords: []string{"alpha"}, CreatedAt: now},
			b:    Entry{Category: "life", Content: "omega", Keywords: []string{"omega"}, CreatedAt: now.Add(-48 * time.Hour)},
			want: 0,
		},
		{
			name: "same category only",
			a:    Entry{Category: "tech", Content: "alpha", CreatedAt: now},
			b:    Entry{Category: "tech", Content: "omega", CreatedAt: now.Add(-48 * time.Hour)},
			want: weightSameCategory,
		},
		{
			name: "full keyword overlap",
			a:    Entry{Category: "a", Keywords: []string{"postgres", "pool"}, CreatedAt: now},
			b:    Entry{Category: "b", Keywords: []string{"postgres", "pool"}, CreatedAt: now.Add(-48 * time.Hour)},
			want: weightKeywordShare,
		},
		{
			name: "half keyword overlap against larger set",
			a:    Entry{Category: "a", Keywords: []string{"postgres"}, CreatedAt: now},
			b:    Entry{Category: "b", Keywords: []string{"postgres", "pool"}, CreatedAt: now.Add(-48 * time.Hour)},
			want: weightKeywordShare * 0.5,
		},
		{
			name: "created within a day",
			a:    Entry{Category: "a", Content: "alpha", CreatedAt: now},
			b:    Entry{Category: "b", Content: "omega", CreatedAt: now.Add(-2 * time.Hour)},
			want: weightTimeProximity,
		},
		{
			name: "many shared content words",
			a:    Entry{Category: "a", Content: "the pool retries the acquire with backoff then validates", CreatedAt: now},
			b:    Entry{Category: "b", Content: "acquire validates pool backoff retries", CreatedAt: now.Add(-48 * time.Hour)},
			want: weightCommonWords,
		},
		{
			name: "everything lines up caps at one",
			a: Entry{Category: "tech", Keywords: []string{"postgres", "pool", "retry"},
				Content: "postgres pool retry backoff validate acquire", CreatedAt: now},
			b: Entry{Category: "tech", Keywords: []string{"postgres", "pool", "retry"},
				Content: "postgres pool retry backoff validate acquire", CreatedAt: now.Add(-time.Hour)},
			want: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Similarity(&tt.a, &tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Similarity() = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	now := time.Now()
	a := Entry{Category: "tech", Keywords: []string{"postgres"}, Content: "postgres pool tuning", CreatedAt: now}
	b := Entry{Category: "tech", Keywords: []string{"postgres", "pool"}, Content: "pool sizing for postgres", CreatedAt: now.Add(-3 * time.Hour)}

	if ab, ba := Similarity(&a, &b), Similarity(&b, &a); math.Abs(ab-ba) > 1e-9 {
		t.Errorf("Similarity not symmetric: %.4f vs %.4f", ab, ba)
	}
}

func TestClassifyLink(t *testing.T) {
	tests := []struct {
		name string
		a, b Entry
		want string
	}{
		{
			name: "shared keywords make a topic link",
			a:    Entry{Category: "tech", Keywords: []string{"postgres"}},
			b:    Entry{Category: "life", Keywords: []string{"postgres", "pool"}},
			want: LinkSameTopic,
		},
		{
			name: "category without keywords",
			a:    Entry{Category: "tech", Keywords: []string{"alpha"}},
			b:    Entry{Category: "tech", Keywords: []string{"omega"}},
			want: LinkSameCategory,
		},
		{
			name: "fallback",
			a:    Entry{Category: "tech", Keywords: []string{"alpha"}},
			b:    Entry{Category: "life", Keywords: []string{"omega"}},
			want: LinkRelated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyLink(&tt.a, &tt.b); got != tt.want {
				t.Errorf("classifyLink() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeywordOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"both empty", nil, nil, 0},
		{"one empty", []string{"x"}, nil, 0},
		{"disjoint", []string{"x"}, []string{"y"}, 0},
		{"identical", []string{"x", "y"}, []string{"x", "y"}, 1},
		{"subset against larger", []string{"x"}, []string{"x", "y", "z", "w"}, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keywordOverlap(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("keywordOverlap(%v, %v) = %.4f, want %.4f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAutoLinkDefaults(t *testing.T) {
	if autoLinkCandidates != 100 {
		t.Errorf("autoLinkCandidates = %d, want 100", autoLinkCandidates)
	}
	if autoLinkWindowDays != 7 {
		t.Errorf("autoLinkWindowDays = %d, want 7", autoLinkWindowDays)
	}
}
