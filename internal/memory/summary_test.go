package memory

import (
	"reflect"
	"strings"
	"testing"
)

func TestBuildSummary(t *testing.T) {
	entries := []Entry{
		{Category: "tech", Content: "团队决定采用PostgreSQL作为主数据库", Keywords: []string{"postgresql", "团队决定采用"}},
		{Category: "tech", Content: "TODO 配置连接池参数", Keywords: []string{"postgresql"}},
		{Category: "life", Content: "大王提到周末要休息", Keywords: []string{"周末"}},
	}

	sum := buildSummary(entries, defaultPeople)

	if !strings.Contains(sum.Content, "3 memories") {
		t.Errorf("Content = %q, want memory count mentioned", sum.Content)
	}
	if !strings.Contains(sum.Content, "2 categories") {
		t.Errorf("Content = %q, want category count mentioned", sum.Content)
	}

	// 决定 marks the first entry, 配置 the second.
	if len(sum.KeyDecisions) != 2 {
		t.Errorf("KeyDecisions = %v, want 2 entries", sum.KeyDecisions)
	}
	// TODO marks the second entry; 需要 nothing.
	if len(sum.ActionItems) != 1 || !strings.Contains(sum.ActionItems[0], "TODO") {
		t.Errorf("ActionItems = %v, want the TODO entry", sum.ActionItems)
	}
	if !reflect.DeepEqual(sum.People, []string{"大王"}) {
		t.Errorf("People = %v, want [大王]", sum.People)
	}
	// Topics are the day's categories, first appearance first.
	if !reflect.DeepEqual(sum.Topics, []string{"tech", "life"}) {
		t.Errorf("Topics = %v, want [tech life]", sum.Topics)
	}
}

func TestBuildSummaryEnglishMarkers(t *testing.T) {
	entries := []Entry{
		{Category: "tech", Content: "decided to keep the connection pool at ten"},
		{Category: "tech", Content: "need to rotate the database credentials"},
		{Category: "life", Content: "an ordinary day"},
	}

	sum := buildSummary(entries, defaultPeople)

	if len(sum.KeyDecisions) != 1 || !strings.Contains(sum.KeyDecisions[0], "decided") {
		t.Errorf("KeyDecisions = %v, want the decided entry", sum.KeyDecisions)
	}
	if len(sum.ActionItems) != 1 || !strings.Contains(sum.ActionItems[0], "need to") {
		t.Errorf("ActionItems = %v, want the need to entry", sum.ActionItems)
	}
}

func TestExtractMarkedCapped(t *testing.T) {
	var entries []Entry
	for i := 0; i < summaryItemCap+5; i++ {
		entries = append(entries, Entry{Content: "决定一件事"})
	}

	got := extractMarked(entries, decisionMarkers)
	if len(got) != summaryItemCap {
		t.Errorf("extractMarked() returned %d items, want %d", len(got), summaryItemCap)
	}
}

func TestExtractMarkedNoMatches(t *testing.T) {
	entries := []Entry{{Content: "平常的一天"}, {Content: "nothing special"}}
	if got := extractMarked(entries, decisionMarkers); len(got) != 0 {
		t.Errorf("extractMarked() = %v, want empty", got)
	}
}

func TestExcerptClipsLongContent(t *testing.T) {
	long := strings.Repeat("记", summaryExcerptRunes+50)
	got := excerpt(long)
	if n := len([]rune(got)); n != summaryExcerptRunes {
		t.Errorf("excerpt() length = %d runes, want %d", n, summaryExcerptRunes)
	}

	short := "短内容"
	if got := excerpt(short); got != short {
		t.Errorf("excerpt(%q) = %q, want unchanged", short, got)
	}
}

func TestMentionedPeoplePreservesRosterOrder(t *testing.T) {
	entries := []Entry{
		{Content: "管理员重置了密码"},
		{Content: "大王确认了方案"},
	}
	got := mentionedPeople(entries, defaultPeople)
	want := []string{"大王", "管理员"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mentionedPeople() = %v, want %v", got, want)
	}
}

func TestDayTopics(t *testing.T) {
	entries := []Entry{
		{Category: "tech"},
		{Category: "planning"},
		{Category: "tech"},
		{Category: "life"},
	}

	got := dayTopics(entries, 10)
	want := []string{"tech", "planning", "life"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("dayTopics() = %v, want distinct categories in first-seen order", got)
	}
}

func TestDayTopicsCapped(t *testing.T) {
	entries := []Entry{
		{Category: "a"}, {Category: "b"}, {Category: "c"},
	}
	if got := dayTopics(entries, 2); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("dayTopics() = %v, want capped at 2", got)
	}
}
