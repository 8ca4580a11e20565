package domain

import (
	"regexp"
	"strings"
)

var shopDomainPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*\.myfunpinpin\.(com|top)[/]*$`)

// ValidateShop reports whether shop is a platform shop domain
func ValidateShop(shop string) bool {
	return shopDomainPattern.MatchString(shop)
}

// SanitizeShop strips a scheme prefix and trailing slashes and validates the result.
// An empty string is returned for anything that is not a shop domain.
func SanitizeShop(shop string) string {
	shop = strings.TrimPrefix(strings.TrimSpace(shop), "https://")
	shop = strings.TrimPrefix(shop, "http://")
	if !ValidateShop(shop) {
		return ""
	}
	return strings.TrimRight(shop, "/")
}
