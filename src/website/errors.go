package website

import (
	"errors"
	"fmt"
	"net/http"

	"git.handmade.network/hmn/boardmod/src/appeals"
	"git.handmade.network/hmn/boardmod/src/bans"
	"git.handmade.network/hmn/boardmod/src/oops"
	"git.handmade.network/hmn/boardmod/src/rangebans"
)

// A SafeError can be used to wrap another error and explicitly provide
// an error message that is safe to show to a user. This allows the original
// error to easily be logged and for servers to consistently return errors
// in a standard format, without having to worry about leaking sensitive
// info (assuming you use the right middleware!).
type SafeError struct {
	Wrapped error
	Msg     string
}

func NewSafeError(err error, msg string, args ...interface{}) error {
	return &SafeError{
		Wrapped: err,
		Msg:     fmt.Sprintf(msg, args...),
	}
}

func (s *SafeError) Error() string {
	return s.Msg
}

func (s *SafeError) Unwrap() error {
	return s.Wrapped
}

type errorBody struct {
	Error    string   `json:"error"`
	Required []string `json:"required,omitempty"`
	Allowed  []string `json:"allowed,omitempty"`
}

func (c *RequestContext) JSONError(status int, msg string) ResponseData {
	res := ResponseData{StatusCode: status}
	res.WriteJson(errorBody{Error: msg}, c.Perf)
	return res
}

func FourOhFour(c *RequestContext) ResponseData {
	return c.JSONError(http.StatusNotFound, "Not Found")
}

/*
Turns an error from the domain packages into a response. Errors that clients
can act on get their own status and message; everything else is a 500 with a
generic message, and the error itself is only logged.
*/
func (c *RequestContext) ErrorResponse(err error) ResponseData {
	status, body := classifyError(err)
	res := ResponseData{StatusCode: status}
	if status >= 500 {
		res.Errors = append(res.Errors, err)
	}
	res.WriteJson(body, c.Perf)
	return res
}

func classifyError(err error) (int, errorBody) {
	var validation *oops.ValidationError
	var alreadyAppealed *appeals.AlreadyAppealedError
	var safe *SafeError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, errorBody{
			Error:    validation.Message,
			Required: validation.Required,
			Allowed:  validation.Allowed,
		}
	case errors.Is(err, rangebans.ErrActiveRangebanExists):
		return http.StatusConflict, errorBody{Error: "Active rangeban already exists for this value"}
	case errors.Is(err, appeals.ErrBanNotFound):
		return http.StatusNotFound, errorBody{Error: "Ban not found"}
	case errors.Is(err, appeals.ErrWrongBoard):
		return http.StatusForbidden, errorBody{Error: "Ban does not belong to this board"}
	case errors.Is(err, appeals.ErrBanInactive):
		return http.StatusBadRequest, errorBody{Error: "Ban is no longer active"}
	case errors.Is(err, appeals.ErrAppealTextRequired):
		return http.StatusBadRequest, errorBody{Error: "Appeal text is required"}
	case errors.Is(err, appeals.ErrAppealTooLong):
		return http.StatusBadRequest, errorBody{Error: fmt.Sprintf("Appeal text must be at most %d characters", appeals.MaxAppealLength)}
	case errors.As(err, &alreadyAppealed):
		return http.StatusBadRequest, errorBody{Error: alreadyAppealed.Error()}
	case errors.Is(err, appeals.ErrNotPending):
		return http.StatusBadRequest, errorBody{Error: "Appeal is not pending"}
	case errors.Is(err, bans.ErrInvalidAppealTransition):
		return http.StatusBadRequest, errorBody{Error: "Invalid appeal status change"}
	case errors.As(err, &safe):
		return http.StatusBadRequest, errorBody{Error: safe.Msg}
	}
	return http.StatusInternalServerError, errorBody{Error: "Internal server error"}
}
