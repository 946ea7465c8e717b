package form

// In-page helpers shared by every script. Targets are always re-resolved by
// identifier, never by a held element reference.
const prelude = `
	const CONTROLS = 'input:not([type=hidden]):not([type=submit]):not([type=button]):not([type=reset]):not([type=image]):not([type=file]), select, textarea, [role=combobox], [role=listbox], [aria-haspopup=listbox], mat-select';
	const PANEL_OPTIONS = '[role=option], mat-option, .mat-option, .mat-mdc-option, .ng-option, .select2-results__option';
	const OVERLAYS = '.cdk-overlay-container, .select2-container--open, body > ng-dropdown-panel, .ant-select-dropdown, .MuiPopover-root, [data-radix-popper-content-wrapper]';
	const TEXT_TYPES = ['text', 'email', 'tel', 'password', 'number', 'url', 'search', 'date', 'datetime-local', 'month', 'week', 'time'];

	function clean(s) { return (s || '').replace(/\s+/g, ' ').trim(); }
	function slug(s) { return clean(s).toLowerCase().replace(/[^a-z0-9]+/g, '-').replace(/^-+|-+$/g, ''); }
	function isVisible(el) { return !!el && el.getClientRects().length > 0; }
	function identifierOf(el) { return el.getAttribute('formcontrolname') || el.getAttribute('name') || el.id || ''; }

	function isComposite(el) {
		const tag = el.tagName.toLowerCase();
		if (tag === 'select' || tag === 'textarea') return false;
		if (tag === 'mat-select') return true;
		const role = el.getAttribute('role');
		const popup = el.getAttribute('aria-haspopup') === 'listbox';
		if (tag === 'input') return role === 'combobox' && (el.readOnly || popup);
		return role === 'combobox' || role === 'listbox' || popup;
	}

	function widgetOf(el) {
		if (isComposite(el)) return 'composite';
		const tag = el.tagName.toLowerCase();
		if (tag === 'select') return 'select';
		if (tag === 'textarea') return 'text';
		if (tag !== 'input') return 'other';
		const type = (el.getAttribute('type') || 'text').toLowerCase();
		if (type === 'radio') return 'radio';
		if (type === 'checkbox') return 'checkbox';
		if (TEXT_TYPES.includes(type)) return 'text';
		return 'other';
	}

	function labelText(label) {
		const copy = label.cloneNode(true);
		copy.querySelectorAll('select, option, textarea, input, mat-select, [role=listbox]').forEach(n => n.remove());
		return clean(copy.textContent);
	}

	function labelFor(el) {
		if (el.id) {
			const explicit = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
			if (explicit) return labelText(explicit);
		}
		const wrapper = el.closest('label');
		if (wrapper) return labelText(wrapper);
		let parent = el.parentElement;
		for (let depth = 0; parent && depth < 4; depth++, parent = parent.parentElement) {
			const nested = parent.querySelector('label');
			if (nested) return labelText(nested);
		}
		return clean(el.getAttribute('aria-label'));
	}

	function candidates(name) {
		const q = CSS.escape(name);
		let found = Array.from(document.querySelectorAll('[formcontrolname="' + q + '"], [name="' + q + '"], #' + q))
			.filter(el => el.matches(CONTROLS));
		if (found.length === 0) {
			found = Array.from(document.querySelectorAll(CONTROLS))
				.filter(el => !identifierOf(el) && slug(labelFor(el)) === name);
		}
		return found.filter(isVisible);
	}

	function resolve(name) {
		const found = candidates(name);
		if (found.length === 0) return null;
		return found.find(el => ['select', 'composite', 'radio'].includes(widgetOf(el))) || found[0];
	}

	// Option panels belong to a host through aria-controls/aria-owns, by
	// rendering inside the host or its wrapper, or in a transient overlay.
	function panelOptions(host) {
		if (!host) return [];
		const owned = host.getAttribute('aria-controls') || host.getAttribute('aria-owns');
		const panel = owned && document.getElementById(owned);
		const scopes = panel ? [panel] : [host, host.parentElement].filter(Boolean);
		if (!panel) {
			document.querySelectorAll(OVERLAYS).forEach(o => scopes.push(o));
			if (host.id) {
				document.querySelectorAll('[role=listbox][aria-labelledby~="' + CSS.escape(host.id) + '"]').forEach(o => scopes.push(o));
			}
		}
		const seen = new Set();
		scopes.forEach(scope => scope.querySelectorAll(PANEL_OPTIONS).forEach(o => seen.add(o)));
		return Array.from(seen)
			.filter(isVisible)
			.sort((a, b) => (a.compareDocumentPosition(b) & Node.DOCUMENT_POSITION_FOLLOWING) ? -1 : 1);
	}

	function press(el) {
		el.scrollIntoView({ block: 'center' });
		const init = { bubbles: true, cancelable: true, view: window };
		['pointerdown', 'mousedown', 'pointerup', 'mouseup', 'click'].forEach(type => {
			const Ctor = type.startsWith('pointer') && window.PointerEvent ? PointerEvent : MouseEvent;
			el.dispatchEvent(new Ctor(type, init));
		});
	}

	function notify(el, blur) {
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		if (blur) {
			el.dispatchEvent(new FocusEvent('blur'));
			el.dispatchEvent(new FocusEvent('focusout', { bubbles: true }));
		}
	}

	function setProperty(el, prop, value) {
		const tag = el.tagName.toLowerCase();
		const proto = tag === 'textarea' ? HTMLTextAreaElement.prototype
			: tag === 'select' ? HTMLSelectElement.prototype
			: HTMLInputElement.prototype;
		const desc = Object.getOwnPropertyDescriptor(proto, prop);
		if (desc && desc.set) desc.set.call(el, value); else el[prop] = value;
	}
`

func script(params, body string) string {
	return "(" + params + ") => {" + prelude + body + "}"
}

var (
	collectControlsJS = script("", `
		const all = Array.from(document.querySelectorAll(CONTROLS));
		const hosts = all.filter(isComposite);
		return all
			.filter(el => !hosts.some(h => h !== el && h.contains(el)))
			.map(el => {
				const label = labelFor(el);
				const widget = widgetOf(el);
				const out = {
					formControlName: el.getAttribute('formcontrolname') || '',
					name: el.getAttribute('name') || '',
					id: el.id || '',
					slug: slug(label),
					label: label,
					placeholder: el.getAttribute('placeholder') || '',
					visible: isVisible(el),
					widget: widget,
					options: []
				};
				if (widget === 'select') {
					out.options = Array.from(el.options).map(o => ({ text: clean(o.text), value: o.value }));
				}
				return out;
			});
	`)

	inspectTargetJS = script("name", `
		const el = resolve(name);
		if (!el) return { found: false };
		const widget = widgetOf(el);
		const out = { found: true, widget: widget, options: [], members: [] };
		if (widget === 'select') {
			out.options = Array.from(el.options).map(o => ({ text: clean(o.text), value: o.value }));
		}
		if (widget === 'radio') {
			out.members = candidates(name).filter(r => widgetOf(r) === 'radio').map(labelFor);
		}
		return out;
	`)

	setSelectJS = script("name, value", `
		const el = resolve(name);
		if (!el || el.tagName.toLowerCase() !== 'select') return false;
		setProperty(el, 'value', value);
		notify(el, false);
		return el.value === value;
	`)

	checkRadioJS = script("name, index", `
		const members = candidates(name).filter(r => widgetOf(r) === 'radio');
		const el = members[index];
		if (!el) return false;
		setProperty(el, 'checked', true);
		notify(el, false);
		return el.checked;
	`)

	setCheckedJS = script("name, checked", `
		const el = resolve(name);
		if (!el || widgetOf(el) !== 'checkbox') return false;
		setProperty(el, 'checked', checked);
		notify(el, false);
		return true;
	`)

	setTextJS = script("name, value", `
		const el = resolve(name);
		if (!el) return false;
		el.dispatchEvent(new FocusEvent('focus'));
		setProperty(el, 'value', value);
		notify(el, true);
		return true;
	`)

	expandCompositeJS = script("name", `
		const el = resolve(name);
		if (!el) return false;
		press(el);
		return true;
	`)

	toggleCompositeJS = script("name", `
		const el = resolve(name);
		if (!el || panelOptions(el).length === 0) return false;
		press(el);
		return true;
	`)

	panelOptionsJS = script("name", `
		return panelOptions(resolve(name)).map(o => clean(o.textContent));
	`)

	collapseCompositeJS = script("name", `
		const el = resolve(name);
		const escape = target => target && target.dispatchEvent(new KeyboardEvent('keydown', { key: 'Escape', code: 'Escape', keyCode: 27, bubbles: true }));
		escape(el);
		escape(document.activeElement);
		if (panelOptions(el).length > 0) {
			const backdrop = document.querySelector('.cdk-overlay-backdrop');
			press(backdrop || document.body);
		}
		return panelOptions(el).length;
	`)

	choosePanelOptionJS = script("name, index", `
		const options = panelOptions(resolve(name));
		const choice = options[index];
		if (!choice) return false;
		press(choice);
		return true;
	`)

	submitCandidatesJS = script("selectors", `
		const out = [];
		selectors.forEach(selector => {
			document.querySelectorAll(selector).forEach((el, index) => {
				if (!isVisible(el) || el.disabled || el.getAttribute('aria-disabled') === 'true') return;
				out.push({ selector: selector, index: index, text: clean(el.textContent || el.value || el.getAttribute('aria-label')) });
			});
		});
		return out;
	`)

	activateJS = script("selector, index", `
		const el = document.querySelectorAll(selector)[index];
		if (!el) return false;
		el.scrollIntoView({ block: 'center' });
		el.click();
		return true;
	`)

	watchStartJS = script("token", `
		const buffer = [];
		const record = node => {
			if (node.nodeType !== Node.TEXT_NODE && node.nodeType !== Node.ELEMENT_NODE) return;
			const text = clean(node.textContent);
			if (text) buffer.push(text.slice(0, 2000));
		};
		const observer = new MutationObserver(mutations => {
			for (const m of mutations) {
				if (m.type === 'characterData') record(m.target);
				m.addedNodes.forEach(record);
			}
		});
		observer.observe(document.body, { childList: true, subtree: true, characterData: true });
		window[token] = { observer: observer, buffer: buffer };
		return true;
	`)

	watchDrainJS = script("token", `
		const w = window[token];
		return w ? w.buffer.splice(0) : [];
	`)

	watchStopJS = script("token", `
		const w = window[token];
		if (!w) return [];
		w.observer.takeRecords().forEach(m => m.addedNodes.forEach(n => {
			const text = clean(n.textContent);
			if (text) w.buffer.push(text.slice(0, 2000));
		}));
		w.observer.disconnect();
		delete window[token];
		return w.buffer.splice(0);
	`)
)
