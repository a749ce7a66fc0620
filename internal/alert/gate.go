// Package alert решает, о чем и как сообщить людям после прогона:
// отбор new/escalated сработок, сборка дайджеста и доставка по каналам.
package alert

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xela07ax/estate-integrity/internal/domain"
)

const (
	DefaultTopN             = 20
	DefaultDescriptionLimit = 220
)

// Select — стабильная сортировка по рангу серьезности (убывание), первые limit штук.
// Входной срез не меняется.
func Select(items []domain.Arising, limit int) []domain.Arising {
	out := make([]domain.Arising, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Finding.Severity.Rank() > out[j].Finding.Severity.Rank()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Digest — готовое к отправке сообщение
type Digest struct {
	Subject string
	Body    string
}

// Render собирает дайджест: шапка с итогами и по строке на каждую топовую сработку.
func Render(findingCount int, items []domain.Arising, limit, descLimit int) Digest {
	top := Select(items, limit)

	var b strings.Builder
	fmt.Fprintf(&b, "Findings this run: %d\n", findingCount)
	fmt.Fprintf(&b, "New or escalated: %d\n", len(items))
	if len(top) > 0 {
		b.WriteString("\n")
	}
	for _, a := range top {
		f := a.Finding
		fmt.Fprintf(&b, "%s %s/%s/%s: %s\n",
			Label(a), f.TenantID, f.Rule, f.EntityKey, Truncate(f.Description, descLimit))
	}
	if rest := len(items) - len(top); rest > 0 {
		fmt.Fprintf(&b, "... and %d more\n", rest)
	}

	return Digest{
		Subject: fmt.Sprintf("Estate integrity: %d new or escalated exception(s)", len(items)),
		Body:    b.String(),
	}
}

// Label: "[NEW HIGH]" или "[ESCALATED MEDIUM -> HIGH]"
func Label(a domain.Arising) string {
	cur := strings.ToUpper(string(a.Finding.Severity))
	if a.Change == domain.ChangeEscalated {
		return fmt.Sprintf("[ESCALATED %s -> %s]", strings.ToUpper(string(a.PreviousSeverity)), cur)
	}
	return fmt.Sprintf("[NEW %s]", cur)
}

// Truncate режет по рунам, с многоточием на конце
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}
