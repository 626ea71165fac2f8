package copilot

// Method names in the server's dialect. Exact strings matter.
const (
	methodSetEditorInfo         = "setEditorInfo"
	methodGetVersion            = "getVersion"
	methodCheckStatus           = "checkStatus"
	methodSignInInitiate        = "signInInitiate"
	methodSignInConfirm         = "signInConfirm"
	methodSignOut               = "signOut"
	methodGetCompletions        = "getCompletions"
	methodGetCompletionsCycling = "getCompletionsCycling"
	methodGetPanelCompletions   = "getPanelCompletions"
	methodInlineCompletion      = "textDocument/inlineCompletion"
	methodNotifyAccepted        = "notifyAccepted"
	methodNotifyRejected        = "notifyRejected"
	methodDidOpenTextDocument   = "textDocument/didOpen"
	methodDidChangeTextDocument = "textDocument/didChange"
	methodDidSaveTextDocument   = "textDocument/didSave"
	methodDidCloseTextDocument  = "textDocument/didClose"
)

// Server-to-client notification methods the dispatcher knows about.
const (
	NotifyWindowLogMessage          = "window/logMessage"
	NotifyLogMessage                = "LogMessage"
	NotifyStatus                    = "statusNotification"
	NotifyFeatureFlags              = "featureFlagsNotification"
	NotifyConversationPreconditions = "conversation/preconditionsNotification"
)

// AccountStatus is the server's authentication state enum.
type AccountStatus string

// Account status values returned by checkStatus, signInConfirm, and
// signOut.
const (
	StatusAlreadySignedIn AccountStatus = "AlreadySignedIn"
	StatusMaybeOK         AccountStatus = "MaybeOk"
	StatusNotAuthorized   AccountStatus = "NotAuthorized"
	StatusNotSignedIn     AccountStatus = "NotSignedIn"
	StatusOK              AccountStatus = "OK"
)

// SignedIn reports whether this status means a usable session exists.
func (s AccountStatus) SignedIn() bool {
	return s == StatusAlreadySignedIn || s == StatusOK
}

// Position is a zero-based line/character location.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open [start, end) text span.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Doc is the document snapshot attached to completion requests.
type Doc struct {
	Source       string   `json:"source"`
	TabSize      int      `json:"tabSize"`
	IndentSize   int      `json:"indentSize"`
	InsertSpaces bool     `json:"insertSpaces"`
	Path         string   `json:"path"`
	URI          string   `json:"uri"`
	RelativePath string   `json:"relativePath"`
	LanguageID   string   `json:"languageId"`
	Position     Position `json:"position"`
	Version      int      `json:"version"`

	// OriginalSource is the pre-edit buffer content, restored
	// server-side when a request is abandoned. Falls back to Source
	// when empty. Never sent with the request itself.
	OriginalSource string `json:"-"`
}

// Suggestion is the canonical completion item surfaced to callers.
type Suggestion struct {
	// ID identifies the suggestion for accept/reject telemetry.
	ID string
	// Text is the display text.
	Text string
	// InsertText is the text to insert at Range.
	InsertText string
	// Range is the replacement span.
	Range Range
	// Position is the cursor position the suggestion was computed at.
	Position Position
}

// SignInSession is the device-flow handle returned by signInInitiate.
type SignInSession struct {
	VerificationURI string `json:"verificationUri"`
	Status          string `json:"status"`
	UserCode        string `json:"userCode"`
	ExpiresIn       int    `json:"expiresIn"`
	Interval        int    `json:"interval"`
}

type versionResult struct {
	Version string `json:"version"`
}

type statusResult struct {
	Status AccountStatus `json:"status"`
	User   string        `json:"user"`
}

type docParams struct {
	Doc Doc `json:"doc"`
}

// codeSuggestion is the wire form of a completion item.
type codeSuggestion struct {
	Text        string   `json:"text"`
	Position    Position `json:"position"`
	UUID        string   `json:"uuid"`
	Range       Range    `json:"range"`
	DisplayText string   `json:"displayText"`
}

type completionsResult struct {
	Completions []codeSuggestion `json:"completions"`
}

// InlineCompletionParams is the request body for
// textDocument/inlineCompletion.
type InlineCompletionParams struct {
	TextDocument      VersionedTextDocument   `json:"textDocument"`
	Position          Position                `json:"position"`
	FormattingOptions FormattingOptions       `json:"formattingOptions"`
	Context           InlineCompletionContext `json:"context"`
}

// VersionedTextDocument identifies a document and its version.
type VersionedTextDocument struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

// FormattingOptions carries indentation settings.
type FormattingOptions struct {
	TabSize      int  `json:"tabSize"`
	InsertSpaces bool `json:"insertSpaces"`
}

// Inline completion trigger kinds.
const (
	TriggerInvoked   = 1
	TriggerAutomatic = 2
)

// InlineCompletionContext describes how the completion was requested.
type InlineCompletionContext struct {
	TriggerKind int `json:"triggerKind"`
}

type inlineCompletionItem struct {
	InsertText string          `json:"insertText"`
	FilterText string          `json:"filterText,omitempty"`
	Range      *Range          `json:"range,omitempty"`
	Command    *commandPayload `json:"command,omitempty"`
}

type commandPayload struct {
	Title     string   `json:"title"`
	Command   string   `json:"command"`
	Arguments []string `json:"arguments,omitempty"`
}

type inlineCompletionsResult struct {
	Items []inlineCompletionItem `json:"items"`
}

type didOpenParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

type textDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type didChangeParams struct {
	TextDocument   VersionedTextDocument `json:"textDocument"`
	ContentChanges []contentChange       `json:"contentChanges"`
}

type contentChange struct {
	Text string `json:"text"`
}

type docIdentifierParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type notifyAcceptedParams struct {
	UUID string `json:"uuid"`
}

type notifyRejectedParams struct {
	UUIDs []string `json:"uuids"`
}
