package cache

import (
	"strings"

	"github.com/damon-houk/waybill-pricing/internal/domain/entity"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const maxDecimalPlaces = 8

// locales used to group digits per currency; anything else uses en-US
var currencyLocales = map[string]language.Tag{
	"USD": language.AmericanEnglish,
	"EUR": language.French,
	"CDF": language.MustParse("fr-CD"),
}

// FormatAmount renders amount with the currency's decimal places and locale.
// Unknown codes render as {code}{amount with 2 decimals}.
func (c *ReferenceRateCache) FormatAmount(amount decimal.Decimal, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))

	info, ok := c.Snapshot().Currency(code)
	if !ok {
		return code + amount.StringFixed(2)
	}
	return formatMoney(amount, info)
}

func formatMoney(amount decimal.Decimal, info entity.CurrencyInfo) string {
	places := info.DecimalPlaces
	if places < 0 {
		places = 0
	}
	if places > maxDecimalPlaces {
		places = maxDecimalPlaces
	}

	tag, ok := currencyLocales[info.Code]
	if !ok {
		tag = language.AmericanEnglish
	}

	symbol := info.Symbol
	if symbol == "" {
		symbol = info.Code
	}

	number := groupDigits(amount.StringFixed(places), localeSeparators(tag))

	if symbolAfter(tag) {
		return number + " " + symbol
	}
	return symbol + number
}

// symbolAfter reports whether the locale writes the symbol after the number
func symbolAfter(tag language.Tag) bool {
	base, _ := tag.Base()
	return base.String() == "fr"
}

type separators struct {
	group   string
	decimal string
}

// localeSeparators reads the locale's grouping and decimal marks off a sample number
func localeSeparators(tag language.Tag) separators {
	sample := message.NewPrinter(tag).Sprintf("%.1f", 1000.5)
	i := strings.Index(sample, "000")
	if i < 1 || len(sample) < i+5 {
		return separators{group: ",", decimal: "."}
	}
	return separators{group: sample[1:i], decimal: sample[i+3 : len(sample)-1]}
}

// groupDigits localizes a plain fixed-point string such as "-1234567.50"
func groupDigits(fixed string, sep separators) string {
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	intPart, frac, hasFrac := strings.Cut(fixed, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteString(sep.group)
		}
		b.WriteRune(d)
	}
	if hasFrac {
		b.WriteString(sep.decimal)
		b.WriteString(frac)
	}
	return b.String()
}
