package browser

// Selector strategies for Google Forms' generated DOM. Class names like
// whsOnd are stable across forms but not guaranteed forever, hence the
// layered fallbacks ending in role-based and text-anchored lookups.

// formReadySelector gates on the first answerable control being visible.
const formReadySelector = "input.whsOnd, input[role='textbox'], div[role='textbox']"

// nameSelectors locate the 姓名 text input, most specific first.
var nameSelectors = []string{
	"input.whsOnd[aria-labelledby]",
	"input.whsOnd",
	"input[aria-label='姓名']",
	"input[aria-labelledby*='姓名']",
	"input[role='textbox']",
	"div[role='textbox']",
}

// reasonSelectors locate the reason textarea on weekend forms.
var reasonSelectors = []string{
	"textarea.KHxj8b.tL9Q4c",
	"textarea[jsname='YPqjbf']",
	"textarea[aria-label='您的回答']",
	"textarea[required]",
	"textarea",
}

// closedBanners are the strings a closed form shows instead of its body.
var closedBanners = []string{
	"不接受回應",
	"不再接受回應",
	"已停止接受回應",
	"停止接受回應",
	"不接受填寫",
	"已關閉",
	"劃假已滿，如有相關問題可聯繫班次主管與排班組。",
}

// submitRedirectPattern matches the post-submit confirmation URLs.
const submitRedirectPattern = `formResponse|/thankyou|/viewform\?edit2=`

// checkVacationScript clicks the 休假 radio and reports whether it ended up
// checked. Sunday forms lack the aria-label (empty data-value, empty span),
// so for 日 we fall back to the radiogroup that mentions the day.
//
// Returns "ok", or a short diagnostic string on failure.
const checkVacationScript = `(function(dayToken) {
	function clickAndVerify(el) {
		if (!el) return false;
		el.scrollIntoView({block: 'center'});
		el.click();
		if (el.getAttribute('aria-checked') === 'true') return true;
		// Some renders swallow the first synthetic click.
		el.dispatchEvent(new MouseEvent('click', {bubbles: true, cancelable: true}));
		return el.getAttribute('aria-checked') === 'true';
	}

	var radio = document.querySelector("[role='radio'][aria-label='休假']");
	if (radio && clickAndVerify(radio)) return 'ok';

	var groups = document.querySelectorAll("div[role='radiogroup']");
	for (var i = 0; i < groups.length; i++) {
		var g = groups[i];
		if (dayToken === '日' && g.textContent.indexOf('星期日') < 0 && groups.length > 1) continue;
		var first = g.querySelector("div[role='radio']");
		if (clickAndVerify(first)) return 'ok';
	}

	return 'radiogroups=' + groups.length;
})(%q)`

// clickSubmitScript clicks the 提交/送出/Submit button. Google renders it
// as a div[role=button], so text matching has to happen in-page.
const clickSubmitScript = `(function() {
	var labels = ['提交', '送出', 'Submit'];
	var buttons = document.querySelectorAll("div[role='button']");
	for (var i = 0; i < buttons.length; i++) {
		var text = (buttons[i].textContent || '').trim();
		for (var j = 0; j < labels.length; j++) {
			if (text.indexOf(labels[j]) >= 0) {
				buttons[i].click();
				return true;
			}
		}
	}
	var span = document.querySelector("span.NPEfkd.RveJvd.snByac");
	if (span) {
		span.click();
		return true;
	}
	return false;
})()`

// closedCheckScript reports whether any closed-form banner is on the page.
const closedCheckScript = `(function(patterns) {
	var body = document.body ? document.body.innerText : '';
	for (var i = 0; i < patterns.length; i++) {
		if (body.indexOf(patterns[i]) >= 0) return patterns[i];
	}
	return '';
})(%s)`
