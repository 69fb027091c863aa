// internal/browser/script.go
package browser

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const innerTextExpression = `document.body ? document.body.innerText : ""`

// setCellSourceFn takes the selector and source as arguments so neither is
// ever spliced into the function body.
const setCellSourceFn = `(function (selector, source) {
	var first = selector.charAt(0);
	var root = (first === "/" || first === "(")
		? document.evaluate(selector, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue
		: document.querySelector(selector);
	if (!root) {
		return false;
	}
	var input = root.tagName === "TEXTAREA" ? root : root.querySelector("textarea");
	if (!input) {
		return false;
	}
	input.value = source;
	input.dispatchEvent(new Event("input", { bubbles: true }));
	return true;
})`

// cellSourceExpression returns a call of setCellSourceFn with JSON-encoded arguments.
func cellSourceExpression(selector, source string) (string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("encode selector: %w", err)
	}
	src, err := json.Marshal(source)
	if err != nil {
		return "", fmt.Errorf("encode cell source: %w", err)
	}
	return fmt.Sprintf("%s(%s, %s)", setCellSourceFn, sel, src), nil
}
