package woocommerce

import (
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TransactionID builds "{orderID}|{host}" or, with a product, "{orderID}|{host}|{slug}".
func TransactionID(orderID int64, host string, product ...string) string {
	id := strconv.FormatInt(orderID, 10) + "|" + host
	if len(product) > 0 && product[0] != "" {
		id += "|" + Slugify(product[0])
	}
	return id
}

// Slugify lower-cases s, folds accents, drops periods and joins the remaining
// words with single dashes.
func Slugify(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r == '.':
			continue
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	return b.String()
}

// SourceHost returns the host of the x-wc-webhook-source URL.
func SourceHost(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return ""
	}
	if !strings.Contains(source, "://") {
		source = "https://" + source
	}
	u, err := url.Parse(source)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// SourceOrigin returns scheme://host[:port] of the source URL.
func SourceOrigin(source string) string {
	u, err := url.Parse(strings.TrimSpace(source))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
