package errno

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	switch typed := err.(type) {
	case *Errno:
		return typed.Code, typed.Message
	case Errno:
		return typed.Code, typed.Message
	default:
		return InternalServerError.Code, err.Error()
	}
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
)

// Business Errors (20000+)
var (
	ErrUserNotFound = Errno{Code: 20101, Message: "User not found"}

	ErrDuplicateNullifier  = Errno{Code: 20301, Message: "Proof with this nullifier was already submitted"}
	ErrSubmissionNotFound  = Errno{Code: 20302, Message: "Proof submission not found"}
	ErrLedgerUnavailable   = Errno{Code: 20303, Message: "Ledger node unavailable, resubmit later"}
	ErrInvalidSignature    = Errno{Code: 20304, Message: "Wallet signature does not match the registered address"}
	ErrPaymentNotFound     = Errno{Code: 20401, Message: "Payment record not found"}
	ErrPaymentNotRetriable = Errno{Code: 20402, Message: "Only failed payments can be retried"}
	ErrProverFailed        = Errno{Code: 20501, Message: "Proof generation failed"}
)
