package auth

import "strings"

var disposableDomains = map[string]struct{}{
	"tempmail.com": {}, "mailinator.com": {}, "10minutemail.com": {},
	"guerrillamail.com": {}, "yopmail.com": {}, "trashmail.com": {},
	"fakeinbox.com": {}, "throwawaymail.com": {}, "temp-mail.org": {},
	"maildrop.cc": {}, "getnada.com": {}, "dispostable.com": {},
	"mailnesia.com": {}, "mytemp.email": {}, "sharklasers.com": {},
	"mail.tm": {}, "tempail.com": {}, "emailondeck.com": {},
	"tempinbox.com": {}, "mailmoat.com": {}, "temp-mail.io": {},
	"mailbox.in.ua": {}, "inboxbear.com": {}, "tmpmail.org": {},
	"temp-mail.net": {}, "throwawayemail.com": {}, "mailcatch.com": {},
	"tempemail.net": {}, "mailmetrash.com": {}, "trashmailer.com": {},
	"mailnull.com": {}, "ofacer.com": {}, "tempmail.pro": {},
}

var disposablePrefixes = []string{
	"temp", "trash", "fake", "throwaway", "disposable",
	"mailinator", "yopmail", "guerrillamail",
}

var disposableTLDs = []string{
	".xyz", ".top", ".club", ".site", ".online",
	".tk", ".ml", ".ga", ".cf", ".gq",
	".test", ".example", ".demo",
}

// isDisposableEmail reports whether the address belongs to a throwaway
// mailbox provider. email must already be lower-cased.
func isDisposableEmail(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := email[at+1:]
	if _, ok := disposableDomains[domain]; ok {
		return true
	}
	for d := range disposableDomains {
		if strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	for _, p := range disposablePrefixes {
		if strings.HasPrefix(domain, p) {
			return true
		}
	}
	for _, tld := range disposableTLDs {
		if strings.HasSuffix(domain, tld) {
			return true
		}
	}
	return false
}
