package copilot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/copilot-bridge/internal/logging"
	"github.com/dshills/copilot-bridge/internal/process"
	"github.com/dshills/copilot-bridge/internal/rpc"
)

// Default completion retry tuning.
const (
	defaultRetryAttempts = 5
	defaultRetryDelay    = 200 * time.Millisecond
)

// Client is a supervised connection to one language server process.
// A process and its connection are owned by exactly one Client; no
// sharing. All methods are safe for concurrent use.
type Client struct {
	logger         *logging.Logger
	dispatcher     *Dispatcher
	editorInfo     EditorInfo
	pluginInfo     EditorPluginInfo
	editorConfig   EditorConfiguration
	retryAttempts  int
	retryDelay     time.Duration
	installDir     string
	terminateGrace time.Duration

	proc *process.Handle
	conn *rpc.Conn

	mu                sync.Mutex
	ongoing           []rpc.ID
	cancels           map[uint64]context.CancelFunc
	cancelSeq         uint64
	activeCompletions int
}

// New spawns the language server described by spec and performs the
// setEditorInfo handshake. When an install directory is configured,
// construction is gated on a usable installation.
func New(ctx context.Context, spec process.Spec, opts ...Option) (*Client, error) {
	c := &Client{
		logger:         logging.Null,
		retryAttempts:  defaultRetryAttempts,
		retryDelay:     defaultRetryDelay,
		terminateGrace: 2 * time.Second,
		editorInfo:     EditorInfo{Name: "copilot-bridge", Version: "0.1.0"},
		pluginInfo:     EditorPluginInfo{Name: "copilot-bridge", Version: "0.1.0"},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dispatcher == nil {
		c.dispatcher = NewDispatcher(c.logger)
	}

	if c.installDir != "" {
		inst := CheckInstallation(c.installDir)
		switch {
		case inst.State == InstallNotInstalled:
			return nil, ErrNotInstalled
		case inst.State == InstallUnsupported:
			return nil, fmt.Errorf("%w: %s is newer than supported %s",
				ErrOutdated, inst.Current, inst.Latest)
		case inst.State == InstallOutdated && inst.Mandatory:
			return nil, fmt.Errorf("%w: %s is below minimum %s",
				ErrOutdated, inst.Current, MinimumSupportedVersion)
		}
	}

	proc, err := process.Start(spec)
	if err != nil {
		return nil, err
	}
	c.proc = proc
	c.conn = rpc.NewConn(proc.Stdout, proc.Stdin,
		rpc.WithCloser(proc.Stdin),
		rpc.WithLogger(c.logger.WithComponent("rpc")),
		rpc.WithNotificationHandler(c.handleNotification),
		rpc.WithSendTap(c.trackRequest),
	)

	// A dead process short-circuits every pending request instead of
	// letting callers hang until a timeout.
	proc.OnExit(func(exitErr error) {
		if exitErr != nil {
			c.logger.Warn("language server exited: %v", exitErr)
		}
		_ = c.conn.Close()
	})

	go c.drainStderr()

	if err := c.sendEditorInfo(ctx); err != nil {
		c.Terminate()
		return nil, fmt.Errorf("setEditorInfo handshake: %w", err)
	}
	return c, nil
}

// Dispatcher returns the notification dispatcher for handler
// registration.
func (c *Client) Dispatcher() *Dispatcher { return c.dispatcher }

// Running reports whether the server process and connection are live.
func (c *Client) Running() bool {
	return c.proc.Running() && !c.conn.Closed()
}

// Terminate tears down the connection and the server process. All
// pending requests resolve with rpc.ErrServerUnavailable.
func (c *Client) Terminate() {
	_ = c.conn.Close()
	c.proc.Terminate(c.terminateGrace)
}

// RefreshEditorInfo re-sends setEditorInfo with updated settings,
// typically after a proxy or enterprise configuration change.
func (c *Client) RefreshEditorInfo(ctx context.Context, cfg EditorConfiguration) error {
	c.mu.Lock()
	c.editorConfig = cfg
	c.mu.Unlock()
	return c.sendEditorInfo(ctx)
}

// Version returns the server's version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var result versionResult
	if err := c.conn.Call(ctx, methodGetVersion, struct{}{}, &result); err != nil {
		return "", err
	}
	return result.Version, nil
}

// CheckStatus returns the authentication status and user, if any.
func (c *Client) CheckStatus(ctx context.Context) (AccountStatus, string, error) {
	var result statusResult
	if err := c.conn.Call(ctx, methodCheckStatus, struct{}{}, &result); err != nil {
		return "", "", err
	}
	return result.Status, result.User, nil
}

// SignInInitiate starts the device sign-in flow. The caller shows the
// verification URI and user code, then calls SignInConfirm.
func (c *Client) SignInInitiate(ctx context.Context) (SignInSession, error) {
	var session SignInSession
	if err := c.conn.Call(ctx, methodSignInInitiate, struct{}{}, &session); err != nil {
		return SignInSession{}, err
	}
	return session, nil
}

// SignInConfirm completes the device sign-in flow with the user code.
func (c *Client) SignInConfirm(ctx context.Context, userCode string) (AccountStatus, string, error) {
	params := map[string]string{"userCode": userCode}
	var result statusResult
	if err := c.conn.Call(ctx, methodSignInConfirm, params, &result); err != nil {
		return "", "", err
	}
	return result.Status, result.User, nil
}

// SignOut signs the user out.
func (c *Client) SignOut(ctx context.Context) (AccountStatus, error) {
	var result statusResult
	if err := c.conn.Call(ctx, methodSignOut, struct{}{}, &result); err != nil {
		return "", err
	}
	return result.Status, nil
}

// GetCompletions requests completions for the given document
// snapshot.
func (c *Client) GetCompletions(ctx context.Context, doc Doc) ([]Suggestion, error) {
	return c.docCompletions(ctx, methodGetCompletions, doc)
}

// GetCompletionsCycling requests the cycling completion variant.
func (c *Client) GetCompletionsCycling(ctx context.Context, doc Doc) ([]Suggestion, error) {
	return c.docCompletions(ctx, methodGetCompletionsCycling, doc)
}

// GetPanelCompletions requests the multi-solution panel variant.
func (c *Client) GetPanelCompletions(ctx context.Context, doc Doc) ([]Suggestion, error) {
	return c.docCompletions(ctx, methodGetPanelCompletions, doc)
}

func (c *Client) docCompletions(ctx context.Context, method string, doc Doc) ([]Suggestion, error) {
	var result completionsResult
	if err := c.completionCall(ctx, method, docParams{Doc: doc}, doc, &result); err != nil {
		return nil, err
	}

	suggestions := make([]Suggestion, 0, len(result.Completions))
	for _, item := range result.Completions {
		id := item.UUID
		if id == "" {
			id = uuid.NewString()
		}
		suggestions = append(suggestions, Suggestion{
			ID:         id,
			Text:       item.DisplayText,
			InsertText: item.Text,
			Range:      item.Range,
			Position:   item.Position,
		})
	}
	return suggestions, nil
}

// InlineCompletions requests inline completion items for the document
// snapshot, through the same supersede/sync/retry/recover flow as the
// other completion variants. Items without a replacement range are
// dropped.
func (c *Client) InlineCompletions(ctx context.Context, doc Doc, trigger int) ([]Suggestion, error) {
	params := InlineCompletionParams{
		TextDocument: VersionedTextDocument{URI: doc.URI, Version: doc.Version},
		Position:     doc.Position,
		FormattingOptions: FormattingOptions{
			TabSize:      doc.TabSize,
			InsertSpaces: doc.InsertSpaces,
		},
		Context: InlineCompletionContext{TriggerKind: trigger},
	}

	var result inlineCompletionsResult
	if err := c.completionCall(ctx, methodInlineCompletion, params, doc, &result); err != nil {
		return nil, err
	}

	suggestions := make([]Suggestion, 0, len(result.Items))
	for _, item := range result.Items {
		if item.Range == nil {
			continue
		}
		id := ""
		if item.Command != nil && len(item.Command.Arguments) > 0 {
			id = item.Command.Arguments[0]
		}
		if id == "" {
			id = uuid.NewString()
		}
		text := item.FilterText
		if text == "" {
			text = item.InsertText
		}
		suggestions = append(suggestions, Suggestion{
			ID:         id,
			Text:       text,
			InsertText: item.InsertText,
			Range:      *item.Range,
			Position:   item.Range.Start,
		})
	}
	return suggestions, nil
}

// CancelOngoing abandons every in-flight completion request: each
// one's local context is cancelled so its caller stops waiting and
// never retries, and the server is told to drop every tracked id. The
// tracked sets are cleared.
func (c *Client) CancelOngoing() {
	c.mu.Lock()
	ids := c.ongoing
	c.ongoing = nil
	cancels := c.cancels
	c.cancels = nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	for _, id := range ids {
		if err := c.conn.Cancel(id); err != nil {
			c.logger.Debug("cancel request %s: %v", id, err)
		}
	}
}

// NotifyAccepted reports an accepted suggestion. Best effort.
func (c *Client) NotifyAccepted(id string) {
	if err := c.conn.Notify(methodNotifyAccepted, notifyAcceptedParams{UUID: id}); err != nil {
		c.logger.Debug("notifyAccepted: %v", err)
	}
}

// NotifyRejected reports rejected suggestions. Best effort.
func (c *Client) NotifyRejected(ids []string) {
	if err := c.conn.Notify(methodNotifyRejected, notifyRejectedParams{UUIDs: ids}); err != nil {
		c.logger.Debug("notifyRejected: %v", err)
	}
}

// OpenDocument announces a newly opened document.
func (c *Client) OpenDocument(uri, languageID string, version int, text string) error {
	return c.conn.Notify(methodDidOpenTextDocument, didOpenParams{
		TextDocument: textDocumentItem{
			URI:        uri,
			LanguageID: languageID,
			Version:    version,
			Text:       text,
		},
	})
}

// ChangeDocument pushes full document content at the given version.
func (c *Client) ChangeDocument(uri string, version int, text string) error {
	return c.conn.Notify(methodDidChangeTextDocument, didChangeParams{
		TextDocument:   VersionedTextDocument{URI: uri, Version: version},
		ContentChanges: []contentChange{{Text: text}},
	})
}

// SaveDocument announces a document save.
func (c *Client) SaveDocument(uri string) error {
	return c.conn.Notify(methodDidSaveTextDocument, docIdentifierParams{
		TextDocument: textDocumentIdentifier{URI: uri},
	})
}

// CloseDocument announces a document close.
func (c *Client) CloseDocument(uri string) error {
	return c.conn.Notify(methodDidCloseTextDocument, docIdentifierParams{
		TextDocument: textDocumentIdentifier{URI: uri},
	})
}

func (c *Client) sendEditorInfo(ctx context.Context) error {
	c.mu.Lock()
	params, err := buildEditorInfoParams(c.editorInfo, c.pluginInfo, c.editorConfig)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.conn.Call(ctx, methodSetEditorInfo, params, nil)
}

// completionCall runs one completion request through the shared
// pipeline: supersede ongoing work, sync the buffer, call with
// bounded retry, and restore the buffer when the request dies.
func (c *Client) completionCall(ctx context.Context, method string, params any, doc Doc, result any) error {
	c.beginCompletion()
	defer c.endCompletion()

	// Supersede earlier completion work before asking for more.
	c.CancelOngoing()

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	key := c.registerCancel(cancel)
	defer c.unregisterCancel(key)

	if err := c.ChangeDocument(doc.URI, 1, doc.Source); err != nil {
		return err
	}
	if err := c.callWithRetry(cctx, method, params, result); err != nil {
		c.recoverAfterFailure(doc, err)
		return err
	}
	return nil
}

func (c *Client) registerCancel(cancel context.CancelFunc) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancels == nil {
		c.cancels = make(map[uint64]context.CancelFunc)
	}
	c.cancelSeq++
	c.cancels[c.cancelSeq] = cancel
	return c.cancelSeq
}

func (c *Client) unregisterCancel(key uint64) {
	c.mu.Lock()
	delete(c.cancels, key)
	c.mu.Unlock()
}

// callWithRetry retries transient server errors on completion
// requests. Transport failures, auth errors, and cancellations are
// not retried.
func (c *Client) callWithRetry(ctx context.Context, method string, params, result any) error {
	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		err := c.conn.Call(ctx, method, params, result)
		if err == nil {
			return nil
		}
		lastErr = err

		var rpcErr *rpc.RPCError
		if !errors.As(err, &rpcErr) {
			return err
		}
		switch rpcErr.Code {
		case rpc.CodeNotSignedIn:
			return fmt.Errorf("%w: %v", ErrNotSignedIn, rpcErr)
		case rpc.CodeRequestCancelled:
			// Superseded; re-issuing the dead request would race the
			// newer one.
			return err
		}
	}
	return lastErr
}

// recoverAfterFailure restores the server's view of the original
// buffer content after an abandoned request. On cancellation the
// restore only happens when no other completion work is in flight;
// another request will push fresh content anyway.
func (c *Client) recoverAfterFailure(doc Doc, err error) {
	if isCancellation(err) {
		c.mu.Lock()
		solo := c.activeCompletions <= 1
		c.mu.Unlock()
		if !solo {
			return
		}
	}

	source := doc.OriginalSource
	if source == "" {
		source = doc.Source
	}
	if nerr := c.ChangeDocument(doc.URI, 0, source); nerr != nil {
		c.logger.Debug("restore document content: %v", nerr)
	}
}

// isCancellation reports whether err means the request was abandoned
// rather than failed: a cancelled or expired local context, or the
// server acknowledging a $/cancelRequest.
func isCancellation(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var rpcErr *rpc.RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == rpc.CodeRequestCancelled
}

func (c *Client) trackRequest(id rpc.ID, method string) {
	switch method {
	case methodGetCompletionsCycling, methodInlineCompletion:
		c.mu.Lock()
		c.ongoing = append(c.ongoing, id)
		c.mu.Unlock()
	}
}

func (c *Client) handleNotification(notif *rpc.Notification) {
	if err := c.dispatcher.Dispatch(notif.Method, notif.Params); err != nil {
		c.logger.Warn("notification %s: %v", notif.Method, err)
	}
}

func (c *Client) beginCompletion() {
	c.mu.Lock()
	c.activeCompletions++
	c.mu.Unlock()
}

func (c *Client) endCompletion() {
	c.mu.Lock()
	c.activeCompletions--
	c.mu.Unlock()
}

func (c *Client) drainStderr() {
	scanner := bufio.NewScanner(c.proc.Stderr)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)
	for scanner.Scan() {
		c.logger.Debug("server stderr: %s", scanner.Text())
	}
}
