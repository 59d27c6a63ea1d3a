// ABOUTME: Preview/execute coordinator for bulk and review operations
// ABOUTME: A stale preview can never authorize execution against a changed selection

package preview

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/driftline/driftline-console/internal/api"
	"github.com/driftline/driftline-console/internal/dispatch"
	"github.com/driftline/driftline-console/internal/stepup"
)

// State is the coordinator's position in the two-phase workflow.
type State int

// Workflow states.
const (
	Idle State = iota
	Previewed
	Confirming
	Executing
	SettledSuccess
	SettledFailed
)

// String returns the state name for logs and error messages.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Previewed:
		return "previewed"
	case Confirming:
		return "confirming"
	case Executing:
		return "executing"
	case SettledSuccess:
		return "settled-success"
	case SettledFailed:
		return "settled-failed"
	default:
		return "unknown"
	}
}

// Coordinator errors.
var (
	ErrNoSelection     = errors.New("no candidates selected")
	ErrNoPreview       = errors.New("no preview available for the current selection")
	ErrNotConfirming   = errors.New("execution requires a pending confirmation")
	ErrNothingEligible = errors.New("preview found no eligible candidates")
	ErrBusy            = errors.New("an execution is already in flight")
)

// Dispatcher is the slice of the mutation dispatcher the coordinator needs.
type Dispatcher interface {
	Do(ctx context.Context, req dispatch.Request) (*api.Envelope, error)
}

// GrantSource gates execution on a valid step-up grant.
type GrantSource interface {
	Valid() bool
	Token() (string, bool)
}

// Options configures a Coordinator for one bulk operation surface.
type Options struct {
	Dispatcher  Dispatcher
	Grants      GrantSource
	PreviewPath string
	ExecutePath string
	// Invalidate is called after a successful execution so cached reads of
	// the affected collection are refreshed. Optional.
	Invalidate func()
	Logger     *slog.Logger
}

// Coordinator runs the Idle → Previewed → Confirming → Executing → Settled
// workflow for a single bulk operation surface. Any change to the candidate
// selection or action parameters drops the workflow back to Idle, discarding
// the preview it was computed from.
type Coordinator struct {
	mu   sync.Mutex
	opts Options
	log  *slog.Logger

	state       State
	selection   []string
	action      string
	params      map[string]any
	fingerprint string
	preview     *api.BulkPreview
	result      *api.BulkResult
	lastErr     error
}

// NewCoordinator creates a Coordinator in the Idle state.
func NewCoordinator(opts Options) *Coordinator {
	log := opts.Logger
	if log == nil {
		log = slog.Default().With("component", "preview")
	}
	return &Coordinator{opts: opts, log: log, state: Idle}
}

// State returns the current workflow state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Preview returns the current preview result, or nil when none is held.
func (c *Coordinator) Preview() *api.BulkPreview {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview
}

// Result returns the settled execution result, or nil.
func (c *Coordinator) Result() *api.BulkResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// LastError returns the error from a failed execution, or nil.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SetSelection replaces the candidate selection. A changed selection
// invalidates any held preview and returns the workflow to Idle.
func (c *Coordinator) SetSelection(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Executing {
		// Late selection writes during execution do not retarget the call;
		// they take effect for the next preview.
		c.selection = append([]string(nil), ids...)
		return
	}
	if fingerprintOf(ids, c.action, c.params) != c.fingerprint || c.preview == nil {
		c.resetLocked()
	}
	c.selection = append([]string(nil), ids...)
}

// SetAction replaces the action and its parameters, invalidating any held
// preview the same way a selection change does.
func (c *Coordinator) SetAction(action string, params map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Executing {
		c.action, c.params = action, params
		return
	}
	if fingerprintOf(c.selection, action, params) != c.fingerprint || c.preview == nil {
		c.resetLocked()
	}
	c.action, c.params = action, params
}

// resetLocked drops preview state back to Idle. Must hold mu.
func (c *Coordinator) resetLocked() {
	c.state = Idle
	c.preview = nil
	c.result = nil
	c.lastErr = nil
	c.fingerprint = ""
}

// Reset returns the coordinator to Idle, dropping any preview and result.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// PreviewImpact runs the read-only simulation for the current selection and
// action, partitioning candidates into eligible and blocked-with-reason. It
// never mutates server state.
func (c *Coordinator) PreviewImpact(ctx context.Context) (*api.BulkPreview, error) {
	c.mu.Lock()
	if c.state == Executing {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if len(c.selection) == 0 {
		c.mu.Unlock()
		return nil, ErrNoSelection
	}
	ids := append([]string(nil), c.selection...)
	action, params := c.action, c.params
	fp := fingerprintOf(ids, action, params)
	c.mu.Unlock()

	env, err := c.opts.Dispatcher.Do(ctx, dispatch.Request{
		Method:   http.MethodPost,
		Path:     c.opts.PreviewPath,
		Body:     api.BulkRequest{IDs: ids, Action: action, Params: params},
		WithCSRF: true,
	})
	if err != nil {
		return nil, err
	}
	var result api.BulkPreview
	if err := dispatch.DecodeData(env, &result); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// The selection may have moved while the simulation ran; a preview is
	// only usable against the exact inputs it was computed from.
	if fingerprintOf(c.selection, c.action, c.params) != fp {
		c.resetLocked()
		return &result, ErrNoPreview
	}
	c.state = Previewed
	c.preview = &result
	c.fingerprint = fp
	c.result = nil
	c.lastErr = nil
	return &result, nil
}

// RequestExecute moves Previewed → Confirming. The caller shows the preview
// and collects an explicit accept before Execute. A failed execution keeps
// its preview, so retry re-enters confirmation from SettledFailed.
func (c *Coordinator) RequestExecute() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if (c.state != Previewed && c.state != SettledFailed) || c.preview == nil {
		return ErrNoPreview
	}
	c.state = Confirming
	return nil
}

// Decline abandons the confirmation, returning to Previewed. No network call
// is made.
func (c *Coordinator) Decline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Confirming {
		c.state = Previewed
	}
}

// Execute commits the operation against the previewed eligible set. It
// refuses to dispatch unless the confirmation is pending, the eligible set
// is non-empty, and a valid step-up grant is held at this moment.
func (c *Coordinator) Execute(ctx context.Context) (*api.BulkResult, error) {
	c.mu.Lock()
	if c.state != Confirming {
		c.mu.Unlock()
		return nil, ErrNotConfirming
	}
	if fingerprintOf(c.selection, c.action, c.params) != c.fingerprint {
		c.resetLocked()
		c.mu.Unlock()
		return nil, ErrNoPreview
	}
	if len(c.preview.EligibleIDs) == 0 {
		c.mu.Unlock()
		return nil, ErrNothingEligible
	}
	token, ok := c.opts.Grants.Token()
	if !ok {
		c.mu.Unlock()
		return nil, stepup.ErrStepUpRequired
	}
	eligible := append([]string(nil), c.preview.EligibleIDs...)
	action, params := c.action, c.params
	c.state = Executing
	c.mu.Unlock()

	env, err := c.opts.Dispatcher.Do(ctx, dispatch.Request{
		Method:      http.MethodPost,
		Path:        c.opts.ExecutePath,
		Body:        api.BulkRequest{IDs: eligible, Action: action, Params: params},
		WithCSRF:    true,
		StepUpToken: token,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		// Selection and preview are preserved so the operator can retry
		// without re-selecting.
		c.state = SettledFailed
		c.lastErr = err
		c.log.Warn("bulk execution failed", "action", action, "error", err)
		return nil, err
	}

	var result api.BulkResult
	if derr := dispatch.DecodeData(env, &result); derr != nil {
		c.state = SettledFailed
		c.lastErr = derr
		return nil, derr
	}

	c.state = SettledSuccess
	c.result = &result
	c.selection = nil
	c.preview = nil
	c.fingerprint = ""
	c.lastErr = nil
	if c.opts.Invalidate != nil {
		c.opts.Invalidate()
	}
	c.log.Info("bulk execution settled", "action", action, "applied", result.Applied)
	return &result, nil
}

// fingerprintOf canonically identifies a (selection, action, params) tuple.
// Selection order is not significant; params serialize with sorted keys.
func fingerprintOf(ids []string, action string, params map[string]any) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	var b strings.Builder
	b.WriteString(action)
	b.WriteByte('\n')
	b.WriteString(strings.Join(sorted, ","))
	b.WriteByte('\n')
	if len(params) > 0 {
		raw, err := json.Marshal(params)
		if err == nil {
			b.Write(raw)
		}
	}
	return b.String()
}
