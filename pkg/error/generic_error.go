package error

// GenericError is the contract the recovery middleware uses to map errors
// onto HTTP responses.
type GenericError interface {
	error
	ErrCode() string
	StatusCode() int
}
