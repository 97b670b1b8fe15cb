package webhook

// Summary statuses.
const (
	StatusSuccess = "success"
	StatusIgnored = "ignored"
	StatusError   = "error"
)

// Response is the JSON summary returned to the storefront.
type Response struct {
	Action   string             `json:"action"`
	Resource string             `json:"resource"`
	Status   string             `json:"status"`
	Message  string             `json:"message,omitempty"`
	Result   map[string]Outcome `json:"result,omitempty"`
}

// Outcome is the per-record result of a registry action, keyed by transaction id.
type Outcome struct {
	Action  string `json:"action"`
	Status  string `json:"status"`
	Key     string `json:"registry_key,omitempty"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewIgnored builds an ignored response carrying reason.
func NewIgnored(action, resource string, reason error) *Response {
	return &Response{Action: action, Resource: resource, Status: StatusIgnored, Message: reason.Error()}
}

// Add records an outcome and recomputes the overall status.
// Any error outcome makes the response an error; any success makes it a success.
func (r *Response) Add(transactionID string, o Outcome) {
	if r.Result == nil {
		r.Result = make(map[string]Outcome)
	}
	r.Result[transactionID] = o
	r.Status = r.summarize()
}

// HasErrors reports whether any outcome failed.
func (r *Response) HasErrors() bool {
	for _, o := range r.Result {
		if o.Status == StatusError {
			return true
		}
	}
	return false
}

func (r *Response) summarize() string {
	status := StatusIgnored
	for _, o := range r.Result {
		switch o.Status {
		case StatusError:
			return StatusError
		case StatusSuccess:
			status = StatusSuccess
		}
	}
	return status
}
