package operations

import (
	"fmt"
	"strings"
	"time"
)

// Operation statuses. Transitions only ever move forward:
// not_started -> running -> succeeded | failed | timed_out.
const (
	StatusNotStarted = "not_started"
	StatusRunning    = "running"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusTimedOut   = "timed_out"
)

// IsTerminal reports whether no further transitions are allowed from status.
func IsTerminal(status string) bool {
	switch status {
	case StatusSucceeded, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

func canTransition(from, to string) bool {
	switch from {
	case StatusNotStarted:
		return to == StatusRunning
	case StatusRunning:
		return IsTerminal(to)
	}
	return false
}

// Model kinds.
const (
	ModelKindRead                = "read"
	ModelKindLayout              = "layout"
	ModelKindInvoice             = "invoice"
	ModelKindReceipt             = "receipt"
	ModelKindIDDocument          = "idDocument"
	ModelKindBusinessCard        = "businessCard"
	ModelKindW2                  = "w2"
	ModelKindHealthInsuranceCard = "healthInsuranceCard"
	ModelKindCustom              = "custom"
)

// ModelType identifies which analysis model an operation uses. It is a closed
// set of prebuilt kinds plus Custom, which carries the remote model id.
type ModelType struct {
	kind     string
	customID string
}

var (
	ModelRead                = ModelType{kind: ModelKindRead}
	ModelLayout              = ModelType{kind: ModelKindLayout}
	ModelInvoice             = ModelType{kind: ModelKindInvoice}
	ModelReceipt             = ModelType{kind: ModelKindReceipt}
	ModelBusinessCard        = ModelType{kind: ModelKindBusinessCard}
	ModelIDDocument          = ModelType{kind: ModelKindIDDocument}
	ModelW2                  = ModelType{kind: ModelKindW2}
	ModelHealthInsuranceCard = ModelType{kind: ModelKindHealthInsuranceCard}
)

// CustomModel builds a ModelType for a caller-trained remote model.
func CustomModel(modelID string) (ModelType, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return ModelType{}, fmt.Errorf("%w: custom model id is required", ErrInvalidInput)
	}
	return ModelType{kind: ModelKindCustom, customID: modelID}, nil
}

// ParseModelType resolves a model name from a request path or payload. It
// accepts both the short kind ("invoice") and the remote id
// ("prebuilt-invoice"); custom models go through CustomModel instead.
func ParseModelType(name string) (ModelType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "read", "prebuilt-read":
		return ModelRead, nil
	case "layout", "prebuilt-layout":
		return ModelLayout, nil
	case "invoice", "prebuilt-invoice":
		return ModelInvoice, nil
	case "receipt", "prebuilt-receipt":
		return ModelReceipt, nil
	case "id-document", "iddocument", "prebuilt-iddocument":
		return ModelIDDocument, nil
	case "business-card", "businesscard", "prebuilt-businesscard":
		return ModelBusinessCard, nil
	case "w2", "prebuilt-tax.us.w2":
		return ModelW2, nil
	case "health-insurance-card", "healthinsurancecard", "prebuilt-healthinsurancecard.us":
		return ModelHealthInsuranceCard, nil
	}
	return ModelType{}, fmt.Errorf("%w: unknown model type %q", ErrInvalidInput, name)
}

// Kind returns the model kind constant.
func (m ModelType) Kind() string { return m.kind }

// CustomID returns the remote model id for custom models, "" otherwise.
func (m ModelType) CustomID() string { return m.customID }

// IsCustom reports whether the model is caller-trained rather than prebuilt.
func (m ModelType) IsCustom() bool { return m.kind == ModelKindCustom }

// IsSchemaModel reports whether the model extracts a known document schema
// (invoice, receipt, ...) and therefore populates key-value pairs.
func (m ModelType) IsSchemaModel() bool {
	switch m.kind {
	case ModelKindInvoice, ModelKindReceipt, ModelKindIDDocument,
		ModelKindBusinessCard, ModelKindW2, ModelKindHealthInsuranceCard:
		return true
	}
	return false
}

// RemoteID returns the model identifier understood by the remote service.
func (m ModelType) RemoteID() string {
	switch m.kind {
	case ModelKindRead:
		return "prebuilt-read"
	case ModelKindLayout:
		return "prebuilt-layout"
	case ModelKindInvoice:
		return "prebuilt-invoice"
	case ModelKindReceipt:
		return "prebuilt-receipt"
	case ModelKindIDDocument:
		return "prebuilt-idDocument"
	case ModelKindBusinessCard:
		return "prebuilt-businessCard"
	case ModelKindW2:
		return "prebuilt-tax.us.w2"
	case ModelKindHealthInsuranceCard:
		return "prebuilt-healthInsuranceCard.us"
	case ModelKindCustom:
		return m.customID
	}
	return ""
}

func (m ModelType) String() string {
	if m.IsCustom() {
		return "custom:" + m.customID
	}
	return m.kind
}

// maxInlineBytes caps uploaded document size.
const maxInlineBytes = 500 * 1024 * 1024

// DocumentSource is the document to analyze: either a fetchable URL or the
// raw bytes of an uploaded file. Exactly one of the two must be set.
type DocumentSource struct {
	URL         string
	Content     []byte
	ContentType string
}

// Validate checks the exactly-one rule and basic shape before any remote call.
func (s DocumentSource) Validate() error {
	hasURL := strings.TrimSpace(s.URL) != ""
	hasBytes := len(s.Content) > 0
	switch {
	case hasURL && hasBytes:
		return fmt.Errorf("%w: provide a document URL or inline content, not both", ErrInvalidInput)
	case hasURL:
		if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
			return fmt.Errorf("%w: document URL must start with http:// or https://", ErrInvalidInput)
		}
		return nil
	case hasBytes:
		if len(s.Content) > maxInlineBytes {
			return fmt.Errorf("%w: document of %d bytes exceeds the %d byte limit", ErrInvalidInput, len(s.Content), maxInlineBytes)
		}
		return nil
	}
	return fmt.Errorf("%w: document source is empty", ErrInvalidInput)
}

// AnalyzeOptions are optional hints forwarded to the remote service.
type AnalyzeOptions struct {
	Locale string   `json:"locale,omitempty"`
	Pages  []string `json:"pages,omitempty"`
}

// Source kinds recorded on an operation.
const (
	SourceKindURL    = "url"
	SourceKindUpload = "upload"
)

// SourceInfo describes where the analyzed document came from. The raw bytes
// of uploads are not retained on the operation; StorageKey points at the
// durable copy when one was kept.
type SourceInfo struct {
	Kind        string `json:"kind"`
	URL         string `json:"url,omitempty"`
	StorageKey  string `json:"storageKey,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	SizeBytes   int64  `json:"sizeBytes,omitempty"`
}

// Error kinds recorded on failed operations.
const (
	ErrorKindRemoteFailure   = "remote_failure"
	ErrorKindMalformedResult = "malformed_result"
	ErrorKindPollUnreachable = "poll_unreachable"
	ErrorKindCancelled       = "cancelled"
)

// OperationError is the normalized description of why an operation failed.
type OperationError struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// Operation is one tracked analysis request, from submission to terminal
// outcome. Result is set only when the status is succeeded, Error only when
// it is failed.
type Operation struct {
	ID        string          `json:"id"`
	RemoteRef string          `json:"-"`
	Model     ModelType       `json:"-"`
	Source    SourceInfo      `json:"source"`
	Status    string          `json:"status"`
	Result    *AnalysisResult `json:"result,omitempty"`
	Error     *OperationError `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// clone returns a snapshot copy that shares no mutable state with the
// tracked entry, so readers never observe a half-applied transition.
func (op Operation) clone() Operation {
	out := op
	if op.Result != nil {
		res := op.Result.clone()
		out.Result = &res
	}
	if op.Error != nil {
		e := *op.Error
		out.Error = &e
	}
	return out
}
