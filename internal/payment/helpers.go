package payment

import (
	"encoding/json"
	"strconv"
	"strings"
)

// flexID decodes a JSON string or number id into its string form. Vendors
// are inconsistent about this, even between versions of their own webhooks.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string { return string(f) }

// centTolerance absorbs float drift when comparing money values that only
// ever carry two decimal places.
const centTolerance = 0.005

// formatAmount renders a monetary value the way the vendor APIs expect,
// always two decimal places.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// splitName breaks a full name into first name and the rest.
func splitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	parts := strings.SplitN(full, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// documentType guesses the Brazilian document kind from its length:
// 11 digits is a CPF, 14 a CNPJ.
func documentType(doc string) string {
	if len(digitsOnly(doc)) == 14 {
		return "CNPJ"
	}
	return "CPF"
}
