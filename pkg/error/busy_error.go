package error

import "net/http"

// BusyError signals that a cycle is already in progress; callers get it
// instead of blocking or queuing.
type BusyError string

func (err BusyError) Error() string {
	return string(err)
}

func (err BusyError) ErrCode() string {
	return "BUSY"
}

func (err BusyError) StatusCode() int {
	return http.StatusConflict
}
