package models

// Default submission enums applied when the caller leaves them empty.
const (
	DefaultUserType     = "exporter"
	DefaultWorkflowType = "export-lc-upload"

	// LCTypeAuto means "let the server decide"; the override field is
	// omitted from the submission payload entirely.
	LCTypeAuto = "auto"
)

// FileUpload is one document in a submission, in caller-supplied order.
type FileUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// ValidationRequest describes one multi-document validation submission.
// Constructed once per submission and never mutated after send.
type ValidationRequest struct {
	Files          []FileUpload
	LCNumber       string
	Notes          string
	DocumentTags   map[string]string // filename -> document-type tag
	UserType       string            // defaults to DefaultUserType
	WorkflowType   string            // defaults to DefaultWorkflowType
	Metadata       map[string]string
	LCTypeOverride string // omitted when empty or LCTypeAuto
}
