package helper

import (
	"strings"

	"golang.org/x/net/idna"
)

// ToASCII converts an internationalized domain name to its punycode form so
// it can be carried in a signed request.
func ToASCII(domain string) (string, error) {
	return idna.Lookup.ToASCII(strings.TrimSuffix(domain, "."))
}

// FQDN joins a record hostname with its domain. "@" and "" denote the apex.
func FQDN(hostname string, domain string) string {
	domain = strings.TrimSuffix(domain, ".")
	if hostname == "" || hostname == "@" {
		return domain
	}
	return hostname + "." + domain
}
