package otp

// Kind classifies an Error so that callers can map it to a response.
type Kind int

const (
	// KindValidation is a missing required field.
	KindValidation Kind = iota + 1
	// KindRequest is a malformed payload.
	KindRequest
	// KindNotFound means there's no pending OTP for the e-mail.
	KindNotFound
	// KindExpired means the pending OTP's TTL has elapsed.
	KindExpired
	// KindInvalidCode is a code mismatch.
	KindInvalidCode
	// KindInternal is a store, delivery or entropy failure.
	KindInternal
)

var kindNames = map[Kind]string{
	KindValidation:  "ValidationError",
	KindRequest:     "RequestError",
	KindNotFound:    "NotFound",
	KindExpired:     "Expired",
	KindInvalidCode: "InvalidCode",
	KindInternal:    "InternalError",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UnknownError"
}

// Error is returned by the Service. Message is safe to show to end users.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches errors by Kind so that errors.Is(err, ErrExpired) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound    = &Error{Kind: KindNotFound, Message: "OTP not found. Please request a new code."}
	ErrExpired     = &Error{Kind: KindExpired, Message: "OTP expired. Please request a new code."}
	ErrInvalidCode = &Error{Kind: KindInvalidCode, Message: "Invalid OTP. Please check and try again."}
	ErrRequest     = &Error{Kind: KindRequest, Message: "Invalid request"}
)

func newErr(k Kind, msg string) *Error {
	return &Error{Kind: k, Message: msg}
}
