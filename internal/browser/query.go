package browser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ysmood/gson"
)

// Step is one hop of a locator chain. An empty Selector only applies Index.
type Step struct {
	Selector string `json:"sel,omitempty"`
	// Index picks a single match; negative keeps all of them.
	Index int `json:"nth"`
}

// Chain is a sequence of selector and index steps resolved from the document root.
type Chain []Step

// Root starts a chain at selector.
func Root(selector string) Chain {
	return Chain{{Selector: selector, Index: -1}}
}

// Then descends into selector from every element the chain matched so far.
func (c Chain) Then(selector string) Chain {
	return append(c.clone(), Step{Selector: selector, Index: -1})
}

// At keeps only the i-th element matched so far.
func (c Chain) At(i int) Chain {
	return append(c.clone(), Step{Index: i})
}

func (c Chain) clone() Chain {
	out := make(Chain, len(c), len(c)+1)
	copy(out, c)
	return out
}

func (c Chain) String() string {
	parts := make([]string, 0, len(c))
	for _, s := range c {
		if s.Selector != "" {
			parts = append(parts, s.Selector)
		}
		if s.Index >= 0 {
			parts = append(parts, "nth="+strconv.Itoa(s.Index))
		}
	}
	return strings.Join(parts, " >> ")
}

// Op is the query performed on the first resolved element.
type Op string

// Query operations understood by the resolver script.
const (
	OpCount   Op = "count"
	OpText    Op = "text"
	OpAttr    Op = "attr"
	OpVisible Op = "visible"
	OpClick   Op = "click"
)

const resolverJS = `function(chain, op, arg) {
  var nodes = [document];
  for (var i = 0; i < chain.length; i++) {
    var step = chain[i];
    if (step.sel) {
      var next = [];
      for (var r = 0; r < nodes.length; r++) {
        var found;
        try { found = nodes[r].querySelectorAll(step.sel); }
        catch (e) { return JSON.stringify({err: "invalid selector " + step.sel}); }
        for (var k = 0; k < found.length; k++) {
          if (next.indexOf(found[k]) < 0) { next.push(found[k]); }
        }
      }
      nodes = next;
    }
    if (step.nth >= 0) { nodes = step.nth < nodes.length ? [nodes[step.nth]] : []; }
  }
  if (chain.length === 0) { nodes = []; }
  var el = nodes.length ? nodes[0] : null;
  var out = {n: nodes.length, v: "", ok: false};
  if (el && op === "text") {
    out.v = el.innerText || el.textContent || "";
    out.ok = true;
  } else if (el && op === "attr") {
    out.ok = el.hasAttribute(arg);
    out.v = out.ok ? el.getAttribute(arg) : "";
  } else if (el && op === "visible") {
    var st = window.getComputedStyle(el);
    out.ok = el.getClientRects().length > 0 && st.visibility !== "hidden" && st.display !== "none";
  } else if (el && op === "click") {
    if (el.scrollIntoView) { el.scrollIntoView({block: "center"}); }
    el.click();
    out.ok = true;
  }
  return JSON.stringify(out);
}`

// QueryScript renders a self-invoking JS expression that resolves chain and
// applies op. The expression evaluates to a JSON string for DecodeQueryResult.
func QueryScript(chain Chain, op Op, arg string) (string, error) {
	chainJSON, err := json.Marshal(chain)
	if err != nil {
		return "", fmt.Errorf("encode chain: %w", err)
	}
	opJSON, err := json.Marshal(string(op))
	if err != nil {
		return "", fmt.Errorf("encode op: %w", err)
	}
	argJSON, err := json.Marshal(arg)
	if err != nil {
		return "", fmt.Errorf("encode arg: %w", err)
	}
	return fmt.Sprintf("(%s)(%s, %s, %s)", resolverJS, chainJSON, opJSON, argJSON), nil
}

// QueryResult is the decoded outcome of a QueryScript evaluation.
type QueryResult struct {
	Matched int
	Value   string
	// OK is op-specific: text read, attribute present, element visible, or click delivered.
	OK bool
}

// DecodeQueryResult parses the JSON string produced by a QueryScript.
func DecodeQueryResult(raw string) (QueryResult, error) {
	res := gson.NewFrom(raw)
	if res.Nil() {
		return QueryResult{}, fmt.Errorf("decode query result: malformed payload %q", truncate(raw, 80))
	}
	if msg := res.Get("err"); !msg.Nil() {
		return QueryResult{}, fmt.Errorf("query: %s", msg.Str())
	}
	out := QueryResult{
		Matched: res.Get("n").Int(),
		OK:      res.Get("ok").Bool(),
	}
	if v := res.Get("v"); !v.Nil() {
		out.Value = v.Str()
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
