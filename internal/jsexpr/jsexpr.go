// Package jsexpr builds the JavaScript expressions injected into the page
// via CDP Runtime.evaluate. Kept separate from internal/cdp so the driver
// stays a thin dispatcher over these strings.
package jsexpr

import (
	"encoding/json"
	"fmt"
)

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func jsonStringPtr(s *string) string {
	if s == nil {
		return "null"
	}
	return jsonString(*s)
}

// Elements returns JS that indexes all interactive elements under an
// optional selector scope, piercing shadow DOM, and returns a JSON array of
// {label, desc} objects. Each surviving element is stamped with
// data-tappi-idx for later click/type targeting.
func Elements(selector *string) string {
	selJSON := jsonStringPtr(selector)
	return fmt.Sprintf(`
(() => {
  function deepClearStamps(root) {
    root.querySelectorAll('[data-tappi-idx]').forEach(el => el.removeAttribute('data-tappi-idx'));
    root.querySelectorAll('*').forEach(el => {
      if (el.shadowRoot) deepClearStamps(el.shadowRoot);
    });
  }

  function deepQueryAll(root, selectors) {
    const results = [];
    try { results.push(...root.querySelectorAll(selectors)); } catch(e) {}
    const allEls = root.querySelectorAll('*');
    for (const el of allEls) {
      if (el.shadowRoot) {
        results.push(...deepQueryAll(el.shadowRoot, selectors));
      }
    }
    return results;
  }

  function deepQueryStamp(root, idx) {
    const found = root.querySelector('[data-tappi-idx="' + idx + '"]');
    if (found) return found;
    const allEls = root.querySelectorAll('*');
    for (const el of allEls) {
      if (el.shadowRoot) {
        const deep = deepQueryStamp(el.shadowRoot, idx);
        if (deep) return deep;
      }
    }
    return null;
  }

  window.__deepQuery = (idx) => deepQueryStamp(document, idx);

  deepClearStamps(document);

  const sel = %s;
  const root = sel ? document.querySelector(sel) : document;
  if (!root) return JSON.stringify({ error: "Selector not found: " + sel });

  const interactive = deepQueryAll(root,
    'a[href], button, input, select, textarea, [role="button"], [role="link"], ' +
    '[role="tab"], [role="menuitem"], [role="checkbox"], [role="radio"], ' +
    '[role="textbox"], [onclick], [tabindex]:not([tabindex="-1"]), details > summary, ' +
    '[contenteditable="true"]'
  );

  const allDialogs = [...document.querySelectorAll('[role=dialog], [role=presentation], [aria-modal=true]')]
    .filter(d => d.offsetParent !== null || getComputedStyle(d).position === 'fixed');
  const realDialogs = allDialogs.filter(d => d.getAttribute('role') === 'dialog' || d.getAttribute('aria-modal') === 'true');
  const topDialog = (realDialogs.length > 0 ? realDialogs[realDialogs.length - 1] : allDialogs[allDialogs.length - 1]) || null;

  const seen = new Set();
  const results = [];

  const sorted = [...interactive].sort((a, b) => {
    const aInDialog = topDialog && topDialog.contains(a) ? 0 : 1;
    const bInDialog = topDialog && topDialog.contains(b) ? 0 : 1;
    return aInDialog - bInDialog;
  });

  for (const el of sorted) {
    if (el.offsetParent === null && el.tagName !== 'BODY' && getComputedStyle(el).position !== 'fixed') continue;

    const isDisabled = el.disabled || el.getAttribute('aria-disabled') === 'true';

    const tag = el.tagName.toLowerCase();
    const type = el.type || '';
    const role = el.getAttribute('role') || '';
    const text = (el.textContent || '').trim().slice(0, 80).replace(/\s+/g, ' ');
    const ariaLabel = el.getAttribute('aria-label') || '';
    const placeholder = el.placeholder || '';
    const href = el.href || '';
    const name = el.name || '';
    const value = (tag === 'input' || tag === 'select' || tag === 'textarea')
      ? (el.value || '').slice(0, 40) : '';

    let label = '';
    if (tag === 'a') label = 'link';
    else if (tag === 'button' || role === 'button') label = 'button';
    else if (tag === 'input') label = type ? 'input:' + type : 'input';
    else if (tag === 'select') label = 'select';
    else if (tag === 'textarea') label = 'textarea';
    else if (role === 'textbox') label = 'textbox';
    else if (role) label = role;
    else label = tag;
    if (isDisabled) label += ':disabled';

    let desc = ariaLabel || text || placeholder || name || '';
    if (value && !desc.includes(value)) desc += desc ? ' [' + value + ']' : value;
    if (tag === 'a' && href && !href.startsWith('javascript:')) {
      desc += desc ? ' → ' + href : href;
    }

    const scope = (topDialog && topDialog.contains(el)) ? 'modal' : 'page';
    const key = scope + '|' + label + '|' + desc;
    if (seen.has(key)) continue;
    seen.add(key);

    el.setAttribute('data-tappi-idx', results.length);
    results.push({ label, desc: desc.slice(0, 120) });
  }

  return JSON.stringify(results);
})()
`, selJSON)
}

// CheckIndexed returns JS that reports whether the page currently has
// element stamps.
func CheckIndexed() string {
	return "!!(document.querySelector('[data-tappi-idx]') || " +
		"(window.__deepQuery && window.__deepQuery(0)))"
}

// ClickInfo returns JS that resolves a stamped index to click coordinates.
func ClickInfo(index int) string {
	return fmt.Sprintf(`
(() => {
  const el = (window.__deepQuery && window.__deepQuery(%d)) || document.querySelector('[data-tappi-idx="%d"]');
  if (!el) return JSON.stringify({ error: 'Element [%d] not found. Run: elements' });
  el.scrollIntoView({ block: 'center' });
  const rect = el.getBoundingClientRect();
  const label = (el.getAttribute('role') || el.tagName.toLowerCase());
  const desc = (el.getAttribute('aria-label') || el.textContent || '').trim().slice(0, 80);
  return JSON.stringify({
    x: rect.x + rect.width / 2,
    y: rect.y + rect.height / 2,
    label, desc
  });
})()
`, index, index, index)
}

// TypeInfo returns JS that validates an element is a text input and
// resolves its focus coordinates.
func TypeInfo(index int) string {
	return fmt.Sprintf(`
(() => {
  const el = (window.__deepQuery && window.__deepQuery(%d)) || document.querySelector('[data-tappi-idx="%d"]');
  if (!el) return JSON.stringify({ error: 'Element [%d] not found. Run: elements' });
  const tag = el.tagName.toLowerCase();
  const ce = el.isContentEditable;
  const role = el.getAttribute('role') || '';
  const typeable = tag === 'input' || tag === 'textarea' || ce || role === 'textbox';
  if (!typeable) return JSON.stringify({ error: 'Element [%d] is a ' + tag + ' (' + (el.getAttribute('aria-label') || el.textContent || '').trim().slice(0, 40) + '), not a text input. Use click instead?' });
  el.scrollIntoView({ block: 'center' });
  const rect = el.getBoundingClientRect();
  return JSON.stringify({ ok: true, tag, ce, x: rect.x + rect.width / 2, y: rect.y + rect.height / 2 });
})()
`, index, index, index, index)
}

// ClearContentEditable returns JS that selects all content in a
// contenteditable element so a single Backspace clears it.
func ClearContentEditable(index int) string {
	return fmt.Sprintf(`
(() => {
  const el = (window.__deepQuery && window.__deepQuery(%d)) || document.querySelector('[data-tappi-idx="%d"]');
  if (el) {
    const range = document.createRange();
    range.selectNodeContents(el);
    const sel = window.getSelection();
    sel.removeAllRanges();
    sel.addRange(range);
  }
})()
`, index, index)
}

// ClearInput returns JS that empties an input/textarea value directly.
func ClearInput(index int) string {
	return fmt.Sprintf(`
(() => {
  const el = (window.__deepQuery && window.__deepQuery(%d)) || document.querySelector('[data-tappi-idx="%d"]');
  if (el) el.value = '';
})()
`, index, index)
}

// SetInputValue sets the DOM value via the native setter (bypassing React's
// synthetic value prop) and dispatches bubbling input/change events.
func SetInputValue(index int, text string) string {
	return fmt.Sprintf(`
(() => {
  const el = (window.__deepQuery && window.__deepQuery(%d)) || document.querySelector('[data-tappi-idx="%d"]');
  if (el && !el.isContentEditable) {
    const setter = Object.getOwnPropertyDescriptor(HTMLInputElement.prototype, 'value')?.set
      || Object.getOwnPropertyDescriptor(HTMLTextAreaElement.prototype, 'value')?.set;
    if (setter) setter.call(el, %s);
    else el.value = %s;
    el.dispatchEvent(new Event('input', { bubbles: true }));
    el.dispatchEvent(new Event('change', { bubbles: true }));
  }
})()
`, index, index, jsonString(text), jsonString(text))
}

// ExtractText depth-first walks the document (or selector root) collecting
// visible text, piercing shadow DOM, capped at 8KB.
func ExtractText(selector *string) string {
	selJSON := jsonStringPtr(selector)
	return fmt.Sprintf(`
(() => {
  const sel = %s;
  const root = sel ? document.querySelector(sel) : document.body;
  if (!root) return 'Selector not found: ' + sel;

  const MAX = 8000;
  const chunks = [];
  let totalLen = 0;

  function extractText(node) {
    if (totalLen >= MAX) return;
    if (node.nodeType === 3) {
      const t = node.textContent.trim();
      if (t.length > 0) {
        const parent = node.parentElement;
        if (parent) {
          const tag = parent.tagName;
          if (['SCRIPT', 'STYLE', 'NOSCRIPT', 'SVG'].includes(tag)) return;
          if (parent.offsetParent === null && getComputedStyle(parent).position !== 'fixed') return;
        }
        chunks.push(t);
        totalLen += t.length;
      }
      return;
    }
    if (node.nodeType === 1) {
      if (node.shadowRoot) {
        for (const child of node.shadowRoot.childNodes) extractText(child);
      }
      for (const child of node.childNodes) extractText(child);
    }
  }

  extractText(root);
  let text = chunks.join(' ').replace(/\s+/g, ' ').trim();
  if (text.length > MAX) text = text.slice(0, MAX) + '... (truncated)';
  return text || '(empty page)';
})()
`, selJSON)
}

// GetHTML returns JS that extracts outerHTML of one element, capped at 10KB.
func GetHTML(selector string) string {
	selJSON := jsonString(selector)
	return fmt.Sprintf(`
(() => {
  const el = document.querySelector(%s);
  if (!el) return 'Selector not found: ' + %s;
  const html = el.outerHTML;
  return html.length > 10000 ? html.slice(0, 10000) + '... (truncated)' : html;
})()
`, selJSON, selJSON)
}
