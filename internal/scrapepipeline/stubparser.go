package scrapepipeline

import "github.com/iaros/marketwatch/internal/apperr"

// UnimplementedParser is the default Parser wired by cmd/scraperservice
// when no site-specific extraction strategy has been supplied. The
// extraction strategy set itself is out of scope here (spec.md §1
// Non-goals: "HTML parser heuristics ... domain-specific and tangential
// to the systems core") — this stub exists only so the pipeline has a
// concrete Parser to satisfy its dependency, not as a starting point for
// one. Real deployments inject their own Parser.
type UnimplementedParser struct{}

func (UnimplementedParser) Parse(html string) (Fields, error) {
	return Fields{}, apperr.New(apperr.ParsingFailed, "no parser configured for this marketplace")
}
