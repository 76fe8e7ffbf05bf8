package instrument

// hookInitScript runs before any page script in every document. It wraps
// fetch and XMLHttpRequest.open so that every requested URL is appended to a
// non-enumerable capture array, which drainHooksScript empties.
const hookInitScript = `(() => {
  if (window.__streamscoutCaptured) return;
  const captured = [];
  Object.defineProperty(window, '__streamscoutCaptured', { value: captured, enumerable: false });
  const record = (input) => {
    try {
      const raw = input && typeof input === 'object' && 'url' in input ? input.url : String(input);
      captured.push(new URL(raw, location.href).href);
      if (captured.length > 5000) captured.splice(0, captured.length - 5000);
    } catch (e) {}
  };
  if (typeof window.fetch === 'function') {
    const origFetch = window.fetch;
    window.fetch = function (input, init) {
      record(input);
      return origFetch.apply(this, arguments);
    };
  }
  if (window.XMLHttpRequest) {
    const origOpen = XMLHttpRequest.prototype.open;
    XMLHttpRequest.prototype.open = function (method, url) {
      record(url);
      return origOpen.apply(this, arguments);
    };
  }
})();`

// drainHooksScript returns and clears the capture array.
const drainHooksScript = `() => {
  const captured = window.__streamscoutCaptured;
  if (!captured) return [];
  return captured.splice(0, captured.length);
}`

// domScanScript collects media element sources from the document and from
// every same-origin nested document.
const domScanScript = `() => {
  const out = new Set();
  const add = (value, base) => {
    if (typeof value !== 'string' || value === '') return;
    try { out.add(new URL(value, base).href); } catch (e) {}
  };
  const visit = (doc, depth) => {
    if (!doc || depth > 4) return;
    doc.querySelectorAll('video, audio, source, track').forEach((el) => {
      add(el.currentSrc, doc.baseURI);
      add(el.src, doc.baseURI);
      add(el.getAttribute('src'), doc.baseURI);
      add(el.getAttribute('data-src'), doc.baseURI);
    });
    doc.querySelectorAll('iframe, frame').forEach((frame) => {
      try { visit(frame.contentDocument, depth + 1); } catch (e) {}
    });
  };
  visit(document, 0);
  return Array.from(out);
}`

// globalScanScript serializes top-level bindings that mention the manifest
// extension. Functions, DOM nodes and cyclic values are skipped.
const globalScanScript = `() => {
  const chunks = [];
  for (const key of Object.keys(window)) {
    if (key.startsWith('__streamscout')) continue;
    let value;
    try { value = window[key]; } catch (e) { continue; }
    if (value === null || value === undefined) continue;
    const kind = typeof value;
    if (kind === 'function') continue;
    try {
      if (kind === 'string') {
        if (value.indexOf('m3u8') >= 0) chunks.push(value);
        continue;
      }
      if (kind === 'object') {
        if (value === window || (typeof Node !== 'undefined' && value instanceof Node)) continue;
        const text = JSON.stringify(value, (k, v) => (typeof v === 'function' ? undefined : v));
        if (text && text.indexOf('m3u8') >= 0) chunks.push(text.slice(0, 200000));
      }
    } catch (e) {}
  }
  return chunks.join('\n');
}`

// timingScanScript lists the names of all resource-timing entries.
const timingScanScript = `() => performance.getEntriesByType('resource').map((e) => e.name)`
