// Package uitree pulls visible text out of uiautomator window dumps.
package uitree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// ErrMalformed is returned when a dump cannot be parsed as a UI hierarchy
var ErrMalformed = errors.New("malformed ui dump")

// TextAttr is the node attribute uiautomator stores visible text in
const TextAttr = "text"

// ExtractTexts returns the distinct, trimmed, non-empty text attributes of a
// dump in document order. Duplicates within the same dump are dropped.
// A dump that fails to parse returns ErrMalformed and no texts.
func ExtractTexts(data []byte) ([]string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformed)
	}

	seen := make(map[string]struct{})
	texts := make([]string, 0)
	walk(root, func(e *etree.Element) {
		text := strings.TrimSpace(e.SelectAttrValue(TextAttr, ""))
		if text == "" {
			return
		}
		if _, dup := seen[text]; dup {
			return
		}
		seen[text] = struct{}{}
		texts = append(texts, text)
	})

	return texts, nil
}

// walk visits e and its descendants in pre-order.
func walk(e *etree.Element, visit func(*etree.Element)) {
	visit(e)
	for _, child := range e.ChildElements() {
		walk(child, visit)
	}
}
