package alert

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/estate-integrity/internal/domain"
)

func arising(entity string, sev domain.Severity) domain.Arising {
	return domain.Arising{
		Finding: domain.Finding{
			TenantID:    "estate-1",
			Rule:        domain.RuleNegativeInventory,
			EntityKey:   entity,
			Severity:    sev,
			Description: "Stock of " + entity + " is negative",
		},
		Change: domain.ChangeNew,
	}
}

func TestSelect_StableBySeverity(t *testing.T) {
	items := []domain.Arising{
		arising("a", domain.SeverityMedium),
		arising("b", domain.SeverityCritical),
		arising("c", domain.SeverityMedium),
		arising("d", domain.SeverityHigh),
		arising("e", domain.SeverityCritical),
	}

	top := Select(items, 4)

	require.Len(t, top, 4)
	var keys []string
	for _, a := range top {
		keys = append(keys, a.Finding.EntityKey)
	}
	assert.Equal(t, []string{"b", "e", "d", "a"}, keys)
	assert.Equal(t, "a", items[0].Finding.EntityKey, "input must stay untouched")
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "[NEW HIGH]", Label(arising("x", domain.SeverityHigh)))

	esc := arising("x", domain.SeverityHigh)
	esc.Change = domain.ChangeEscalated
	esc.PreviousSeverity = domain.SeverityMedium
	assert.Equal(t, "[ESCALATED MEDIUM -> HIGH]", Label(esc))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 220))

	long := strings.Repeat("ü", 300)
	out := Truncate(long, 220)
	assert.Equal(t, 220, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "…"))
}

func TestRender_DigestLayout(t *testing.T) {
	items := make([]domain.Arising, 0, 25)
	for i := 0; i < 25; i++ {
		items = append(items, arising(string(rune('a'+i)), domain.SeverityMedium))
	}
	items[24].Finding.Severity = domain.SeverityCritical

	d := Render(40, items, 20, 220)

	lines := strings.Split(strings.TrimRight(d.Body, "\n"), "\n")
	assert.Equal(t, "Findings this run: 40", lines[0])
	assert.Equal(t, "New or escalated: 25", lines[1])
	assert.Equal(t, "[NEW CRITICAL] estate-1/negative_inventory/y: Stock of y is negative", lines[3])
	assert.Equal(t, "... and 5 more", lines[len(lines)-1])
	assert.Contains(t, d.Subject, "25")
}
