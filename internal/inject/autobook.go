package inject

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/vyrodovalexey/bookproxy/internal/session"
)

// maxAutomationWaitMs is the overall budget for one automation run.
const maxAutomationWaitMs = 30000

// Action is the kind of operation a step performs.
type Action string

// Step actions.
const (
	ActionClick    Action = "click"
	ActionNavigate Action = "navigate"
)

// Step is one unit of UI automation: wait for Selector, perform Action,
// then wait WaitAfterMs before advancing. Steps are data so that the
// per-engine flows stay testable and diffable; the generated client
// script interprets them with a single generic driver.
type Step struct {
	Name     string `json:"name"`
	Selector string `json:"selector,omitempty"`
	Action   Action `json:"action"`

	// LinkSelector, IDPattern, and NavigateTemplate feed the navigate
	// action: prefer the href of LinkSelector; otherwise extract a
	// booking identifier from the current path with IDPattern and
	// substitute it into NavigateTemplate's {id} placeholder.
	LinkSelector     string `json:"linkSelector,omitempty"`
	IDPattern        string `json:"idPattern,omitempty"`
	NavigateTemplate string `json:"navigateTemplate,omitempty"`

	WaitAfterMs    int `json:"waitAfterMs"`
	PollIntervalMs int `json:"pollIntervalMs"`

	// SuccessWhen is a JavaScript expression evaluated with el bound to
	// the matched element; truthy means the step is already satisfied
	// and the action is skipped.
	SuccessWhen string `json:"successWhen,omitempty"`

	// EscapeFallback dispatches a window-level Escape keydown when the
	// selector never appears. Modal libraries commonly listen for
	// Escape at the window level rather than on a close control.
	EscapeFallback bool `json:"escapeFallback,omitempty"`
}

// Strategy is one engine's ordered automation flow.
type Strategy struct {
	Engine session.Engine

	// ShowOverlay displays the full-screen progress overlay for the
	// duration of the run.
	ShowOverlay bool

	// SkipPathPattern is a regex matched against location.pathname;
	// automation never runs on matching (checkout) pages.
	SkipPathPattern string

	Steps []Step
}

// strategies maps each engine to its automation flow.
var strategies = map[session.Engine]Strategy{
	session.EngineA: {
		Engine:          session.EngineA,
		ShowOverlay:     true,
		SkipPathPattern: `/(checkout|reservation|payment)`,
		Steps: []Step{
			{
				Name:           "select-room",
				Selector:       `[data-action="select-room"], .room-rate .select-room-btn`,
				Action:         ActionClick,
				WaitAfterMs:    800,
				PollIntervalMs: 250,
			},
			{
				Name:           "add-to-cart",
				Selector:       `[data-action="add-to-cart"], .add-to-cart-btn`,
				Action:         ActionClick,
				WaitAfterMs:    1000,
				PollIntervalMs: 250,
			},
			{
				Name:           "dismiss-modal",
				Selector:       `.modal .close, .modal-dialog [data-dismiss="modal"]`,
				Action:         ActionClick,
				WaitAfterMs:    400,
				PollIntervalMs: 250,
				EscapeFallback: true,
			},
			{
				Name:           "book-now",
				Selector:       `[data-action="book-now"], .book-now-btn`,
				Action:         ActionClick,
				WaitAfterMs:    0,
				PollIntervalMs: 250,
			},
		},
	},
	session.EngineB: {
		Engine:          session.EngineB,
		ShowOverlay:     false,
		SkipPathPattern: `/(checkout|payment)`,
		Steps: []Step{
			{
				Name:           "book",
				Selector:       `.booking-list .book-btn, [data-role="book"]`,
				Action:         ActionClick,
				WaitAfterMs:    1000,
				PollIntervalMs: 250,
				SuccessWhen:    `el.classList.contains("booked")`,
			},
			{
				Name:             "checkout",
				Action:           ActionNavigate,
				LinkSelector:     `a[href*="/checkout"]`,
				IDPattern:        `/booking/([A-Za-z0-9_-]+)`,
				NavigateTemplate: `/checkout/{id}`,
				WaitAfterMs:      0,
				PollIntervalMs:   250,
			},
		},
	},
}

// strategyFor returns the automation strategy for an engine.
func strategyFor(engine session.Engine) (Strategy, bool) {
	s, ok := strategies[engine]
	return s, ok
}

// overlayScript installs the progress overlay before the rest of the
// page body exists, so the user never sees the half-driven UI.
const overlayScript = `<script data-bp="overlay">
(function() {
  "use strict";
  if (document.getElementById("bp-progress-overlay")) { return; }
  var overlay = document.createElement("div");
  overlay.id = "bp-progress-overlay";
  overlay.setAttribute("style",
    "position:fixed;top:0;left:0;width:100vw;height:100vh;" +
    "background:#fff;z-index:2147483647;display:flex;" +
    "align-items:center;justify-content:center;" +
    "font-family:sans-serif;font-size:18px;color:#333;");
  overlay.textContent = "Preparing your booking…";
  document.documentElement.appendChild(overlay);
})();
</script>`

// driverTemplate is the generic step-runner. It polls each step's
// selector up to the overall deadline, performs the action, and
// advances; on timeout it aborts and removes the overlay.
const driverTemplate = `<script data-bp="autobook">
(function() {
  "use strict";
  var STEPS = __STEPS__;
  var SKIP_PATTERN = new RegExp("__SKIP_PATTERN__");
  var MAX_WAIT_MS = __MAX_WAIT_MS__;

  function removeOverlay() {
    var overlay = document.getElementById("bp-progress-overlay");
    if (overlay && overlay.parentNode) {
      overlay.parentNode.removeChild(overlay);
    }
  }

  if (SKIP_PATTERN.test(window.location.pathname)) {
    removeOverlay();
    return;
  }

  var deadline = Date.now() + MAX_WAIT_MS;

  function navigateTarget(step) {
    var link = step.linkSelector && document.querySelector(step.linkSelector);
    if (link && link.getAttribute("href")) {
      return link.getAttribute("href");
    }
    if (step.idPattern && step.navigateTemplate) {
      var match = window.location.pathname.match(new RegExp(step.idPattern));
      if (match && match[1]) {
        return step.navigateTemplate.replace("{id}", match[1]);
      }
    }
    return null;
  }

  function dispatchEscape() {
    // Modal libraries listen for Escape at the window level.
    window.dispatchEvent(new KeyboardEvent("keydown", {
      key: "Escape", keyCode: 27, which: 27, bubbles: true
    }));
  }

  function stepSatisfied(step, el) {
    if (!step.successWhen) { return false; }
    try {
      /* eslint-disable no-new-func */
      return !!new Function("el", "return (" + step.successWhen + ");")(el);
    } catch (e) {
      return false;
    }
  }

  function runStep(index) {
    if (index >= STEPS.length) {
      removeOverlay();
      return;
    }
    var step = STEPS[index];

    function attempt() {
      if (Date.now() > deadline) {
        removeOverlay();
        return;
      }

      if (step.action === "navigate") {
        var target = navigateTarget(step);
        if (target) {
          window.location.assign(target);
          return;
        }
        setTimeout(attempt, step.pollIntervalMs);
        return;
      }

      var el = step.selector && document.querySelector(step.selector);
      if (el) {
        if (!stepSatisfied(step, el)) {
          el.click();
        }
        setTimeout(function() { runStep(index + 1); }, step.waitAfterMs);
        return;
      }

      if (step.escapeFallback) {
        dispatchEscape();
        setTimeout(function() { runStep(index + 1); }, step.waitAfterMs);
        return;
      }

      setTimeout(attempt, step.pollIntervalMs);
    }

    attempt();
  }

  if (document.readyState === "loading") {
    document.addEventListener("DOMContentLoaded", function() { runStep(0); });
  } else {
    runStep(0);
  }
})();
</script>`

// autobookScript renders the driver with the strategy's steps embedded
// as JSON.
func autobookScript(strategy Strategy) (string, error) {
	steps, err := json.Marshal(strategy.Steps)
	if err != nil {
		return "", err
	}

	skip := strings.ReplaceAll(strategy.SkipPathPattern, `\`, `\\`)

	return strings.NewReplacer(
		"__STEPS__", string(steps),
		"__SKIP_PATTERN__", skip,
		"__MAX_WAIT_MS__", strconv.Itoa(maxAutomationWaitMs),
	).Replace(driverTemplate), nil
}
