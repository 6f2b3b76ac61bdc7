package extractor

import (
	"bufio"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

var (
	emailPattern     = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	imageSuffixes    = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".avif"}
	lastSoldLabel    = regexp.MustCompile(`(?i)^\s*last\s+sold\s*(?:for|on)?\s*:?\s*`)
	whitespaceRunsRe = regexp.MustCompile(`\s+`)
)

// visibleText returns the page text with scripts and styles removed, one
// trimmed line per text line.
func visibleText(doc *goquery.Document) string {
	clone := doc.Clone()
	clone.Find("script, style, noscript, template").Remove()
	return normalizeText(clone.Find("body").Text())
}

func normalizeText(s string) string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(s))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRunsRe.ReplaceAllString(s, " "))
}

// findEmail returns the first address in text that is not an image name
// such as "logo@2x.png".
func findEmail(text string) string {
	for _, m := range emailPattern.FindAllString(text, -1) {
		if !isImageName(m) {
			return m
		}
	}
	return ""
}

func isImageName(s string) bool {
	lower := strings.ToLower(s)
	for _, suffix := range imageSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// mailtoEmail returns the address of the first usable mailto: link.
func mailtoEmail(doc *goquery.Document) string {
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if !strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return true
		}
		addr := href[len("mailto:"):]
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if unescaped, err := url.PathUnescape(addr); err == nil {
			addr = unescaped
		}
		found = findEmail(addr)
		return found == ""
	})
	return found
}

// byline asks readability for the article author, which on agent profile
// pages is usually the agent.
func byline(html []byte, pageURL *url.URL) string {
	parser := readability.NewParser()
	article, err := parser.Parse(strings.NewReader(string(html)), pageURL)
	if err != nil {
		return ""
	}
	name := collapse(article.Byline)
	name = strings.TrimPrefix(name, "By ")
	name = strings.TrimPrefix(name, "by ")
	return strings.TrimSpace(name)
}
