package browser

import (
	"context"
	"fmt"

	"github.com/JakeFAU/prodrefs/internal/crawler"
)

// Evaluator runs a JS expression in a live page and returns its string result.
type Evaluator interface {
	EvalString(ctx context.Context, expression string) (string, error)
}

// ScriptLocator resolves its chain by evaluating QueryScript in a live page.
// The chromedp and rod drivers share it.
type ScriptLocator struct {
	eval  Evaluator
	chain Chain
}

// NewScriptLocator returns a locator rooted at selector.
func NewScriptLocator(eval Evaluator, selector string) *ScriptLocator {
	return &ScriptLocator{eval: eval, chain: Root(selector)}
}

// Chain exposes the resolved selector path.
func (l *ScriptLocator) Chain() Chain {
	return l.chain
}

// Locate descends into selector.
func (l *ScriptLocator) Locate(selector string) Locator {
	return &ScriptLocator{eval: l.eval, chain: l.chain.Then(selector)}
}

// Nth narrows to the i-th match.
func (l *ScriptLocator) Nth(i int) Locator {
	return &ScriptLocator{eval: l.eval, chain: l.chain.At(i)}
}

// Count returns the number of matches.
func (l *ScriptLocator) Count(ctx context.Context) (int, error) {
	res, err := l.run(ctx, OpCount, "")
	if err != nil {
		return 0, err
	}
	return res.Matched, nil
}

// Text returns the rendered text of the first match.
func (l *ScriptLocator) Text(ctx context.Context) (string, error) {
	res, err := l.run(ctx, OpText, "")
	if err != nil {
		return "", err
	}
	if res.Matched == 0 {
		return "", fmt.Errorf("%s: %w", l.chain, crawler.ErrNotFound)
	}
	return res.Value, nil
}

// Attr returns the named attribute of the first match.
func (l *ScriptLocator) Attr(ctx context.Context, name string) (string, bool, error) {
	res, err := l.run(ctx, OpAttr, name)
	if err != nil {
		return "", false, err
	}
	if res.Matched == 0 {
		return "", false, fmt.Errorf("%s: %w", l.chain, crawler.ErrNotFound)
	}
	return res.Value, res.OK, nil
}

// Visible reports whether the first match is rendered.
func (l *ScriptLocator) Visible(ctx context.Context) (bool, error) {
	res, err := l.run(ctx, OpVisible, "")
	if err != nil {
		return false, err
	}
	return res.OK, nil
}

// Click clicks the first match.
func (l *ScriptLocator) Click(ctx context.Context) error {
	res, err := l.run(ctx, OpClick, "")
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("click %s: %w", l.chain, crawler.ErrNotFound)
	}
	return nil
}

func (l *ScriptLocator) run(ctx context.Context, op Op, arg string) (QueryResult, error) {
	script, err := QueryScript(l.chain, op, arg)
	if err != nil {
		return QueryResult{}, err
	}
	raw, err := l.eval.EvalString(ctx, script)
	if err != nil {
		return QueryResult{}, fmt.Errorf("%s %s: %w", op, l.chain, err)
	}
	return DecodeQueryResult(raw)
}
