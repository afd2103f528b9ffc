package risk

import "strings"

var disposableDomains = map[string]struct{}{
	"10minutemail.com":       {},
	"20minutemail.com":       {},
	"dispostable.com":        {},
	"emailondeck.com":        {},
	"fakeinbox.com":          {},
	"getnada.com":            {},
	"guerrillamail.com":      {},
	"guerrillamail.net":      {},
	"mailcatch.com":          {},
	"maildrop.cc":            {},
	"mailinator.com":         {},
	"mailnesia.com":          {},
	"mintemail.com":          {},
	"mohmal.com":             {},
	"sharklasers.com":        {},
	"spamgourmet.com":        {},
	"temp-mail.org":          {},
	"tempmail.com":           {},
	"tempmailo.com":          {},
	"throwawaymail.com":      {},
	"throwaway.email":        {},
	"trashmail.com":          {},
	"yopmail.com":            {},
	"mytemp.email":           {},
	"burnermail.io":          {},
	"discard.email":          {},
	"tempinbox.com":          {},
	"mailpoof.com":           {},
	"temporary-mail.net":     {},
	"guerrillamailblock.com": {},
}

func IsDisposableDomain(domain string) bool {
	_, ok := disposableDomains[strings.ToLower(strings.TrimSpace(domain))]
	return ok
}
