package identity

import (
	"testing"
	"time"
)

func TestParseCrawlDelayWildcard(t *testing.T) {
	content := "User-agent: *\nCrawl-delay: 10\nDisallow: /private\n"
	d := ParseCrawlDelay(content, "MyBot")
	if !d.HasDelay || d.CrawlDelay != 10*time.Second {
		t.Fatalf("expected 10s wildcard delay, got %+v", d)
	}
}

func TestParseCrawlDelayExactUATakesPrecedence(t *testing.T) {
	content := "User-agent: *\nCrawl-delay: 10\n\nUser-agent: MyBot\nCrawl-delay: 2\n"
	d := ParseCrawlDelay(content, "MyBot")
	if !d.HasDelay || d.CrawlDelay != 2*time.Second {
		t.Fatalf("expected 2s exact-UA delay, got %+v", d)
	}
}

func TestParseCrawlDelayAbsent(t *testing.T) {
	d := ParseCrawlDelay("User-agent: *\nDisallow: /\n", "MyBot")
	if d.HasDelay {
		t.Fatalf("expected no delay directive, got %+v", d)
	}
}

func TestJitterRangeForDelay(t *testing.T) {
	jmin, jmax := JitterRangeForDelay(10 * time.Second)
	if jmin != 5*time.Second || jmax != 15*time.Second {
		t.Fatalf("expected [5s,15s], got [%v,%v]", jmin, jmax)
	}
}
