package firecrawl

import "strings"

// promotionText is boilerplate the hosted crawler injects at the top of
// scraped markdown.
const promotionText = "Introducing Firecrawl v2.5 - The world's best web data API. " +
	"[Read the blog.](https://www.firecrawl.dev/blog/the-worlds-best-web-data-api-v25)"

// CleanPromotion strips the crawler's promotional banner from markdown and
// trims surrounding whitespace. Content without the banner passes through
// with only the trim applied.
func CleanPromotion(content string) string {
	if content == "" {
		return content
	}
	return strings.TrimSpace(strings.ReplaceAll(content, promotionText, ""))
}

// creditErrorMarkers identify API failures caused by plan or billing limits
// rather than a transient fault.
var creditErrorMarkers = []string{"credits", "plan", "payment", "subscription"}

// IsCreditError reports whether err looks like a billing or quota failure
// from the crawler API.
func IsCreditError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range creditErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
