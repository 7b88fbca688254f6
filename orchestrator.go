package rendezvous

import (
	"context"
	"sync"
	"time"

	"github.com/lumichat/rendezvous/domain"
	"github.com/lumichat/rendezvous/log"
)

// teardownTimeout bounds the best-effort peer notification once the run
// context is already gone.
const teardownTimeout = 5 * time.Second

// State is the immutable snapshot handed to the rendering boundary on every
// phase change. Only the fields relevant to Phase are populated.
type State struct {
	Phase              domain.Phase
	Code               string
	ConfirmationDigits string
	VerificationURI    string
	NewDeviceID        string
	Reason             domain.FailureReason
}

// RenderFunc is invoked with a State snapshot on every phase change.
type RenderFunc func(State)

// CompletionFunc is invoked exactly once per Run with true when an
// authenticated session was produced and false otherwise.
type CompletionFunc func(success bool)

// Deps are the external collaborators the orchestrator drives.
type Deps struct {
	Exchanger CredentialExchanger
	Opener    URLOpener
	Logger    log.Logger
}

// Options configure one orchestrator instance.
type Options struct {
	// CryptoEnabled gates the verifying phase on the legacy protocol.
	CryptoEnabled bool
	OnRender      RenderFunc
	OnComplete    CompletionFunc
}

// Orchestrator owns the phase state machine for one sign-in attempt. It
// constructs the session via the factory, serializes every protocol-driven
// and user-driven transition into one control loop, and guarantees that at
// most one session operation is in flight at a time.
type Orchestrator struct {
	factory   SessionFactory
	exchanger CredentialExchanger
	opener    URLOpener
	logger    log.Logger

	cryptoEnabled bool
	render        RenderFunc
	complete      CompletionFunc

	clicks chan domain.Click

	mu       sync.Mutex
	disposed bool
	state    State
	cancel   context.CancelFunc

	completeOnce sync.Once
}

// New builds an orchestrator. The factory decides the protocol generation;
// the orchestrator never branches on the concrete type after dispatching a
// freshly constructed session to its flow.
func New(factory SessionFactory, deps Deps, opts Options) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		factory:       factory,
		exchanger:     deps.Exchanger,
		opener:        deps.Opener,
		logger:        logger,
		cryptoEnabled: opts.CryptoEnabled,
		render:        opts.OnRender,
		complete:      opts.OnComplete,
		clicks:        make(chan domain.Click, 4),
	}
}

// Run drives the state machine until the attempt succeeds, the user abandons
// it, or the context is cancelled. It returns only in a terminal state; the
// completion callback has fired exactly once by then.
func (o *Orchestrator) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		o.finish(false)
		return
	}
	o.cancel = cancel
	o.mu.Unlock()

	for {
		if !o.attempt(runCtx) {
			return
		}
		// Back from the error phase: re-run the mount sequence with a fresh
		// session. The previous one is already closed and never reused.
	}
}

// Click delivers a user action. Clicks not valid for the current phase are
// dropped. Safe to call from any goroutine.
func (o *Orchestrator) Click(c domain.Click) {
	select {
	case o.clicks <- c:
	default:
		o.logger.Debug(context.Background(), "click dropped, queue full",
			map[string]interface{}{"click": string(c)})
	}
}

// Dispose tears the orchestrator down. Any in-flight operation is abandoned;
// no state update is published after Dispose returns. Idempotent.
func (o *Orchestrator) Dispose() {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return
	}
	o.disposed = true
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Snapshot returns the last published state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// attempt runs one mount-to-terminal pass. It returns true when the user
// asked to retry from the error phase.
func (o *Orchestrator) attempt(ctx context.Context) (retry bool) {
	o.publish(State{Phase: domain.PhaseLoading})

	sess, err := o.factory(ctx)
	if err != nil {
		return o.fail(ctx, nil, classify(err))
	}

	switch s := sess.(type) {
	case LegacySession:
		return o.legacyFlow(ctx, s)
	case ModernSession:
		return o.modernFlow(ctx, s)
	default:
		o.discard(sess, domain.ReasonUnknown)
		return o.fail(ctx, nil, domain.ReasonUnknown)
	}
}

// legacyFlow drives the peer-to-peer protocol per the transition table.
func (o *Orchestrator) legacyFlow(ctx context.Context, s LegacySession) bool {
	code, _, err := awaitOp(ctx, o, nil, s.GenerateCode)
	if err != nil {
		return o.fault(ctx, s, err)
	}
	o.publish(State{Phase: domain.PhaseShowingQR, Code: code})

	digits, click, err := awaitOp(ctx, o, []domain.Click{domain.ClickBack}, s.StartAfterShowingCode)
	if click == domain.ClickBack {
		return o.userCancel(s)
	}
	if err != nil {
		return o.fault(ctx, s, err)
	}
	o.publish(State{Phase: domain.PhaseConnected, Code: code, ConfirmationDigits: digits})

	for {
		c, err := o.waitClick(ctx, domain.ClickApprove, domain.ClickDecline)
		if err != nil {
			return o.abandoned(s)
		}
		if c == domain.ClickDecline {
			if err := s.DeclineLogin(ctx); err != nil {
				return o.fault(ctx, s, err)
			}
			_ = s.Close()
			o.finish(false)
			return false
		}
		break // approved
	}

	o.publish(State{Phase: domain.PhaseWaitingForDevice, Code: code, ConfirmationDigits: digits})

	token, err := o.exchanger.RequestLoginToken(ctx)
	if err != nil {
		return o.fault(ctx, s, err)
	}

	deviceID, err := s.ApproveLogin(ctx, token.Value)
	if err != nil {
		return o.fault(ctx, s, err)
	}
	o.logger.Info(ctx, "login approved on existing device",
		map[string]interface{}{"device_id": deviceID})

	if o.cryptoEnabled {
		o.publish(State{Phase: domain.PhaseVerifying, NewDeviceID: deviceID})
		if err := s.VerifyNewDevice(ctx); err != nil {
			return o.fault(ctx, s, err)
		}
	}

	_ = s.Close()
	o.finish(true)
	return false
}

// modernFlow drives the OIDC-flavored protocol per the transition table.
func (o *Orchestrator) modernFlow(ctx context.Context, s ModernSession) bool {
	code, _, err := awaitOp(ctx, o, nil, s.GenerateCode)
	if err != nil {
		return o.fault(ctx, s, err)
	}
	o.publish(State{Phase: domain.PhaseShowingQR, Code: code})

	back := []domain.Click{domain.ClickBack}

	negotiation, click, err := awaitOp(ctx, o, back, s.NegotiateProtocols)
	if click == domain.ClickBack {
		return o.userCancel(s)
	}
	if err != nil {
		return o.fault(ctx, s, err)
	}
	o.logger.Debug(ctx, "protocol negotiated",
		map[string]interface{}{"protocol": negotiation.Protocol})

	grant, click, err := awaitOp(ctx, o, back, s.DeviceAuthorizationGrant)
	if click == domain.ClickBack {
		return o.userCancel(s)
	}
	if err != nil {
		return o.fault(ctx, s, err)
	}

	if grant.VerificationURI != "" {
		o.publish(State{Phase: domain.PhaseOutOfBandConfirmation, Code: code, VerificationURI: grant.VerificationURI})

		c, err := o.waitClick(ctx, domain.ClickApprove, domain.ClickCancel)
		if err != nil {
			return o.abandoned(s)
		}
		if c == domain.ClickCancel {
			return o.userCancel(s)
		}
		if err := o.opener.OpenURL(ctx, grant.VerificationURI); err != nil {
			// The consent screen is reachable by other means; surfacing the
			// URI in state is enough to continue.
			o.logger.Warn(ctx, "failed to open verification uri",
				map[string]interface{}{"uri": grant.VerificationURI, "error": err.Error()})
		}
	}

	o.publish(State{Phase: domain.PhaseWaitingForDevice, Code: code})

	if err := s.ShareSecrets(ctx); err != nil {
		return o.fault(ctx, s, err)
	}

	_ = s.Close()
	o.finish(true)
	return false
}

// fault handles a rejected session operation: if the run context is gone the
// attempt was abandoned, otherwise the error is classified and surfaced.
func (o *Orchestrator) fault(ctx context.Context, s Session, err error) bool {
	if ctx.Err() != nil {
		return o.abandoned(s)
	}
	return o.fail(ctx, s, classify(err))
}

// fail tears the session down with reason, publishes the error phase, and
// waits for the user to retry (Back) or give up (Cancel).
func (o *Orchestrator) fail(ctx context.Context, s Session, reason domain.FailureReason) bool {
	if s != nil {
		o.discard(s, reason)
	}
	o.publish(State{Phase: domain.PhaseError, Reason: reason})

	c, err := o.waitClick(ctx, domain.ClickBack, domain.ClickCancel)
	if err != nil {
		o.finish(false)
		return false
	}
	if c == domain.ClickBack {
		return true
	}
	o.finish(false)
	return false
}

// userCancel handles an explicit user abort: the peer is told the user
// cancelled and the caller is notified false. No further phase change.
func (o *Orchestrator) userCancel(s Session) bool {
	o.discard(s, domain.ReasonUserCancelled)
	o.finish(false)
	return false
}

// abandoned handles run-context cancellation (teardown or caller cancel)
// mid-flight. The session is discarded quietly; late resolutions from the
// operation that was in flight go nowhere.
func (o *Orchestrator) abandoned(s Session) bool {
	o.discard(s, domain.ReasonUserCancelled)
	o.finish(false)
	return false
}

// discard cancels and closes a session exactly once, on a fresh context so
// the peer notification is not lost to the dying run context.
func (o *Orchestrator) discard(s Session, reason domain.FailureReason) {
	cctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := s.Cancel(cctx, reason); err != nil {
		o.logger.Debug(cctx, "session cancel failed",
			map[string]interface{}{"reason": string(reason), "error": err.Error()})
	}
	_ = s.Close()
}

// waitClick blocks until one of the accepted clicks arrives or ctx is
// cancelled. Clicks outside the accepted set are dropped.
func (o *Orchestrator) waitClick(ctx context.Context, accepted ...domain.Click) (domain.Click, error) {
	for {
		select {
		case c := <-o.clicks:
			if clickIn(c, accepted) {
				return c, nil
			}
			o.logger.Debug(ctx, "ignoring click in current phase",
				map[string]interface{}{"click": string(c), "phase": string(o.Snapshot().Phase)})
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// publish records the new state and notifies the rendering boundary. Nothing
// is published after Dispose: the disposed flag is checked under the same
// lock Dispose takes.
func (o *Orchestrator) publish(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.disposed {
		return
	}
	o.state = s
	if o.render != nil {
		o.render(s)
	}
}

// finish fires the completion callback exactly once per Run.
func (o *Orchestrator) finish(success bool) {
	o.completeOnce.Do(func() {
		if o.complete != nil {
			o.complete(success)
		}
	})
}

func clickIn(c domain.Click, set []domain.Click) bool {
	for _, s := range set {
		if s == c {
			return true
		}
	}
	return false
}

type opResult[T any] struct {
	value T
	err   error
}

// awaitOp runs op in its own goroutine and blocks until it settles, an
// accepted click arrives, or ctx is cancelled. A resolution arriving after a
// click or cancellation is delivered into a buffered channel nobody reads:
// it can never mutate orchestrator state.
func awaitOp[T any](ctx context.Context, o *Orchestrator, accepted []domain.Click, op func(context.Context) (T, error)) (T, domain.Click, error) {
	resCh := make(chan opResult[T], 1)
	go func() {
		v, err := op(ctx)
		resCh <- opResult[T]{value: v, err: err}
	}()

	var zero T
	for {
		select {
		case res := <-resCh:
			return res.value, "", res.err
		case c := <-o.clicks:
			if clickIn(c, accepted) {
				return zero, c, nil
			}
			o.logger.Debug(ctx, "ignoring click in current phase",
				map[string]interface{}{"click": string(c)})
		case <-ctx.Done():
			return zero, "", ctx.Err()
		}
	}
}
