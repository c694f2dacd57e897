package provider

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/net/html"

	"github.com/jonandersen/etrade-cli/internal/market"
)

// parseOptionChainPage looks for option data embedded in an option-chain
// page: a <script> whose text carries a JSON object mentioning optionChain,
// or an element with a data-options attribute holding JSON.
func parseOptionChainPage(body []byte, req market.ChainRequest) (market.ChainResult, bool) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return market.ChainResult{}, false
	}

	var scripts, attrs []string
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode {
			continue
		}
		if n.Data == "script" {
			scripts = append(scripts, nodeText(n))
			continue
		}
		for _, a := range n.Attr {
			if a.Key == "data-options" && strings.TrimSpace(a.Val) != "" {
				attrs = append(attrs, a.Val)
			}
		}
	}

	for _, text := range scripts {
		if !strings.Contains(strings.ToLower(text), "optionchain") {
			continue
		}
		for _, blob := range embeddedJSON(text) {
			if result, ok := parseQuoteSite(blob, req); ok {
				return result, true
			}
		}
	}

	for _, attr := range attrs {
		if result, ok := parseQuoteSite([]byte(attr), req); ok {
			return result, true
		}
	}

	return market.ChainResult{}, false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

// embeddedJSON returns candidate JSON objects around the "optionChain" key in
// script text: the widest span from the first '{' to the last '}', then the
// first complete value decoded from each '{' preceding the key.
func embeddedJSON(text string) [][]byte {
	key := strings.Index(text, `"optionChain"`)
	if key < 0 {
		return nil
	}

	var out [][]byte
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first >= 0 && first < key && last > key {
		out = append(out, []byte(text[first:last+1]))
	}

	for start := strings.LastIndex(text[:key], "{"); start >= 0; start = strings.LastIndex(text[:start], "{") {
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&raw); err == nil && len(raw) > key-start {
			out = append(out, raw)
		}
	}
	return out
}
