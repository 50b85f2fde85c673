package httpx

import (
	"fmt"
	"net/http"

	"github.com/mbolis/intake-survey/log"
	"github.com/mbolis/intake-survey/store"
	"github.com/mbolis/intake-survey/survey"
	"github.com/pkg/errors"
)

// Will log an error, and send an HTTP response with status 500 and default text
func LogInternalError(w http.ResponseWriter, code string, err error) {
	log.Errorf("%s: %s", code, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// Will log a debug message, and send an HTTP response with status 404 and default text
func LogNotFound(w http.ResponseWriter, code string, id any) {
	log.Debugf("%s: not found (%v)", code, id)
	http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
}

// Will log an error code at the given level, and send
// an HTTP response with status and default text
func LogStatus(w http.ResponseWriter, status int, level log.Level, code string) {
	log.Log(level, code)
	http.Error(w, http.StatusText(status), status)
}

// Will log an error code and message at the given level,
// and send an HTTP response with the given status and formatted message
func LogStatusMsg(w http.ResponseWriter, status int, level log.Level, code string, msg string, args ...any) {
	errMsg := fmt.Sprintf(msg, args...)
	log.Log(level, code+":", errMsg)
	http.Error(w, errMsg, status)
}

// Will send the status matching the kind of err. Unknown errors are
// logged and answered with status 500
func LogError(w http.ResponseWriter, code string, err error) {
	switch {
	case errors.Is(err, survey.ErrNotFound), errors.Is(err, store.ErrNotFound):
		LogNotFound(w, code, err)
	case errors.Is(err, survey.ErrUnauthenticated):
		LogStatus(w, http.StatusUnauthorized, log.DebugLevel, code)
	case errors.Is(err, survey.ErrInvalidValue):
		LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, code, "%s", err)
	case errors.Is(err, survey.ErrNotTraversing), errors.Is(err, store.ErrConflict):
		LogStatus(w, http.StatusConflict, log.DebugLevel, code)
	default:
		LogInternalError(w, code, err)
	}
}
