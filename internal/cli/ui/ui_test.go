package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"saturday", "sunday", 3},
		{"Plan", "Plan", 0},
		{"plna", "plan", 2},
		{"naïve", "naive", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Distance(tt.a, tt.b), "%q -> %q", tt.a, tt.b)
	}
}

func TestSuggest(t *testing.T) {
	models := []string{"Plan", "PlanAssociation", "Operation", "OperationType", "Job", "Wire"}

	assert.Equal(t, []string{"Plan"}, Suggest("plna", models, 3))
	assert.Equal(t, []string{"Job"}, Suggest("Jo", models, 3))
	assert.Nil(t, Suggest("Collection", models, 3))

	many := []string{"aa", "ab", "ac", "ad", "ae"}
	assert.Len(t, Suggest("a", many, 3), MaxSuggestions)
}

func TestMessageFormat(t *testing.T) {
	msg := UnknownModel("Plna", []string{"Plan", "Wire"}, true)
	out := msg.Format()

	assert.Contains(t, out, "x UNKNOWN MODEL: Plna")
	assert.Contains(t, out, "Did you mean: Plan?")
	assert.Contains(t, out, "→ List models: trident models")

	var buf bytes.Buffer
	Warning("cache unavailable", true).Write(&buf)
	assert.Equal(t, "! cache unavailable\n", buf.String())

	cfg := ConfigProblem(errors.New("session.dsn is required"), true).Format()
	assert.True(t, strings.HasPrefix(cfg, "x CONFIGURATION ERROR: session.dsn is required"))

	rel := UnknownRelationship("Plan", "operatons", []string{"operations", "wires"}, true).Format()
	assert.Contains(t, rel, `Plan has no relationship "operatons"`)
	assert.Contains(t, rel, "Did you mean: operations?")

	assert.Equal(t, "✓ done", Success("done", true))
}

func TestTable(t *testing.T) {
	table := NewTable(true, "MODEL", "FIELDS", "RELATIONSHIPS")
	table.AddRow("Plan", "status", "operations, wires")
	table.AddRow("Wire", "from_id, to_id", "source", "extra")

	var buf bytes.Buffer
	table.Render(&buf)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"MODEL  FIELDS          RELATIONSHIPS",
		"─────  ──────────────  ─────────────────",
		"Plan   status          operations, wires",
		"Wire   from_id, to_id  source",
	}, lines)
	assert.Equal(t, 2, table.Len())

	buf.Reset()
	NewTable(true).Render(&buf)
	assert.Empty(t, buf.String())
}

func TestKeyValueTable(t *testing.T) {
	kv := NewKeyValueTable(true)
	kv.AddRow("model", "Plan")
	kv.AddRow("load_all", "false")

	var buf bytes.Buffer
	kv.Render(&buf)
	assert.Equal(t, "model:    Plan\nload_all: false\n", buf.String())

	buf.Reset()
	Header(&buf, "Plan", true)
	assert.Equal(t, "Plan\n────\n", buf.String())
}
