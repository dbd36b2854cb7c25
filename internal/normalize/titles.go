package normalize

import (
	"regexp"
	"strings"
)

// Amazon scrapes often capture deal badge text instead of the real product
// name, e.g. "75% offLimited-time deal" or "60% offLightning Deal".
var (
	badgePrefix = regexp.MustCompile(`(?i)^\d+%\s*off`)
	badgeSuffix = regexp.MustCompile(`(?i)(Limited[- ]time deal|Lightning Deal|Best Seller|Prime Early Access|Deal of the Day|Climate Pledge Friendly|Amazon'?s?\s*Choice|Sponsored|Top Deal|Overall Pick|Ends in\d+:\d+:\d+)$`)
	badgeTimer  = regexp.MustCompile(`Ends in\d+:\d+:\d+`)
	junkTitle   = regexp.MustCompile(`(?i)^(\d+%\s*off)?\s*(Limited[- ]time deal|Lightning Deal|Deal of the Day|Top Deal|Best Seller|Sponsored|Overall Pick|Ends in\d+:\d+:\d+)\s*$`)
	asinInURL   = regexp.MustCompile(`/dp/([A-Z0-9]{10})`)
)

// CleanTitle strips badge junk from a scraped title and falls back to a
// brand/ASIN label when nothing usable remains.
func CleanTitle(raw string, row map[string]any) string {
	title := strings.TrimSpace(raw)

	if title == "" || junkTitle.MatchString(title) {
		return fallbackTitle(row)
	}

	cleaned := strings.TrimSpace(badgePrefix.ReplaceAllString(title, ""))
	cleaned = strings.TrimSpace(badgeTimer.ReplaceAllString(cleaned, ""))
	cleaned = strings.TrimSpace(badgeSuffix.ReplaceAllString(cleaned, ""))

	if len(cleaned) < 3 {
		return fallbackTitle(row)
	}
	return cleaned
}

// fallbackTitle builds a display title from brand + ASIN so users can still
// identify the product from the image.
func fallbackTitle(row map[string]any) string {
	brand, _ := stringValue(row["brand"])
	brand = strings.TrimSpace(brand)

	asin, _ := stringValue(row["asin"])
	if asin == "" {
		if url, ok := stringValue(row["affiliate_url"]); ok {
			if m := asinInURL.FindStringSubmatch(url); m != nil {
				asin = m[1]
			}
		}
	}

	switch {
	case asin != "" && brand != "":
		return brand + " (" + asin + ")"
	case asin != "":
		return "Amazon Deal (" + asin + ")"
	case brand != "":
		return brand
	}

	if id, ok := stringValue(row["id"]); ok {
		return "Deal #" + id
	}
	return "Deal"
}
