package pricing

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

var million = apd.New(1, 6)

// Table converts token usage into an estimated USD cost with exact decimal math
type Table struct {
	promptPerMillion     apd.Decimal
	completionPerMillion apd.Decimal
}

// NewTable parses per-million-token prices such as "0.30"
func NewTable(promptPerMillion, completionPerMillion string) (*Table, error) {
	t := &Table{}
	if _, _, err := t.promptPerMillion.SetString(promptPerMillion); err != nil {
		return nil, fmt.Errorf("invalid prompt price %q: %w", promptPerMillion, err)
	}
	if _, _, err := t.completionPerMillion.SetString(completionPerMillion); err != nil {
		return nil, fmt.Errorf("invalid completion price %q: %w", completionPerMillion, err)
	}
	if t.promptPerMillion.Negative || t.completionPerMillion.Negative {
		return nil, fmt.Errorf("prices must not be negative")
	}
	return t, nil
}

// Cost returns prompt*p/1e6 + completion*c/1e6 as a plain decimal string
func (t *Table) Cost(promptTokens, completionTokens int64) (string, error) {
	ctx := apd.BaseContext.WithPrecision(34)

	var prompt, completion, a, b, sum, res apd.Decimal
	prompt.SetInt64(promptTokens)
	completion.SetInt64(completionTokens)

	if _, err := ctx.Mul(&a, &prompt, &t.promptPerMillion); err != nil {
		return "", err
	}
	if _, err := ctx.Mul(&b, &completion, &t.completionPerMillion); err != nil {
		return "", err
	}
	if _, err := ctx.Add(&sum, &a, &b); err != nil {
		return "", err
	}
	if _, err := ctx.Quo(&res, &sum, million); err != nil {
		return "", err
	}

	return text(&res), nil
}

// Sum adds decimal cost strings, skipping ones that fail to parse
func Sum(costs []string) string {
	ctx := apd.BaseContext.WithPrecision(34)

	var total apd.Decimal
	for _, s := range costs {
		var d apd.Decimal
		if _, _, err := d.SetString(s); err != nil {
			continue
		}
		if _, err := ctx.Add(&total, &total, &d); err != nil {
			continue
		}
	}

	return text(&total)
}

func text(d *apd.Decimal) string {
	if d.IsZero() {
		return "0"
	}
	d.Reduce(d)
	return d.Text('f')
}

func (t *Table) Prices() (prompt, completion string) {
	return t.promptPerMillion.Text('f'), t.completionPerMillion.Text('f')
}
