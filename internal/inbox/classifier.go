package inbox

import (
	"regexp"

	"github.com/unclebandit/outreach-backend/internal/model"
)

// Go's \b only knows ASCII word characters, so patterns ending in an accented
// letter carry no trailing boundary.

var bouncePatterns = compile(
	`delivery fail`,
	`permanent error`,
	`\bmailer[\s-]?daemon\b`,
	`\bundeliverable\b`,
	`message not delivered`,
	`mail delivery subsystem`,
	`delivery status notification`,
	`could not be delivered`,
	`user unknown`,
	`mailbox unavailable`,
	`address rejected`,
	`\bnon[\s-]?remis\b`,
	`erreur de livraison`,
)

var outOfOfficePatterns = compile(
	`out of office`,
	`\bvacation\b`,
	`\baway\b.*\b(from|until|till)\b`,
	`\bon leave\b`,
	`auto[\s-]?reply`,
	`automatic reply`,
	`currently unavailable`,
	`\bcong[ée]`,
	`\babsence\b`,
	`\ben vacances?\b`,
	`retour le\b`,
	`de retour\b`,
	`hors du bureau`,
	`\babsente?\b`,
	`r[ée]ponse automatique`,
)

var unsubscribePatterns = compile(
	`\bunsubscribe\b`,
	`\bremove me\b`,
	`\bstop contacting\b`,
	`\bstop emailing\b`,
	`\bdo not contact\b`,
	`\bopt[\s-]?out\b`,
	`\btake me off\b`,
	`\bno longer interested\b`,
	`\bd[ée]sabonner\b`,
	`\bd[ée]sinscription\b`,
	`ne plus recevoir`,
	`ne m['’]?[ée]crivez plus`,
	`arr[êe]tez de m`,
	`plus de mail`,
	`retirez[\s-]moi`,
	`supprimez[\s-]moi`,
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// Classify applies the keyword rules to an inbound message. Bounces are
// checked first, then out-of-office, then unsubscribe requests. It returns
// nil when no rule matches and the message is left for an external classifier.
func Classify(subject, body string) *string {
	text := subject + " " + body
	rules := []struct {
		classification string
		patterns       []*regexp.Regexp
	}{
		{model.ClassificationBounce, bouncePatterns},
		{model.ClassificationOutOfOffice, outOfOfficePatterns},
		{model.ClassificationUnsubscribe, unsubscribePatterns},
	}
	for _, r := range rules {
		for _, p := range r.patterns {
			if p.MatchString(text) {
				c := r.classification
				return &c
			}
		}
	}
	return nil
}
