// Package canonical reduces any marketplace product URL to its stable,
// idempotent form, used as the uniqueness key for MonitoredProduct and
// CompetitorProduct (spec.md §6 "Canonical URL").
//
// Grounded on _examples/original_source/shared/utils/ml_url.py.
package canonical

import (
	"net/url"
	"regexp"
	"strings"
)

// productHosts are the hostnames recognized as Mercado Livre product pages.
var productHosts = map[string]bool{
	"produto.mercadolivre.com.br": true,
	"www.mercadolivre.com.br":     true,
	"m.mercadolivre.com.br":       true,
}

var productRE = regexp.MustCompile(`(?i)MLB[-_]?(\d+)`)

// Canonicalize returns the canonical product URL, or "" if u does not
// belong to the mercadolivre.com.br marketplace or carries no MLB id.
// Canonicalize is idempotent: Canonicalize(Canonicalize(u)) == Canonicalize(u).
func Canonicalize(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := parsed.Hostname()
	if !strings.Contains(host, "mercadolivre.com.br") {
		return ""
	}
	match := productRE.FindStringSubmatch(raw)
	if match == nil {
		return ""
	}
	return "https://produto.mercadolivre.com.br/MLB-" + match[1]
}

// IsProductURL reports whether host belongs to a known product-page host,
// independent of whether an MLB id was found.
func IsProductURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return productHosts[parsed.Hostname()]
}
