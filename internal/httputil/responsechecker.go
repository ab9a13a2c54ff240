// Package httputil holds small response-validation helpers shared by the
// core's HTTP-speaking components (today, only the Package Materializer's
// archive download).
package httputil

import (
	"fmt"
	"io"
	"net/http"
	"slices"
)

// bodyPreviewLimit bounds how much of a rejected response's body is read
// into the returned error, so a large error page doesn't get buffered in
// full just to report the first line of it.
const bodyPreviewLimit = 256

// CheckResponse reports an error unless resp's status code is one of
// acceptableCodes, including as much of the response body as
// bodyPreviewLimit allows so the caller's logs show why a download or query
// was rejected.
func CheckResponse(resp *http.Response, acceptableCodes ...int) error {
	if slices.Contains(acceptableCodes, resp.StatusCode) {
		return nil
	}
	limitBody, err := io.ReadAll(io.LimitReader(resp.Body, bodyPreviewLimit))
	if err != nil {
		return fmt.Errorf("unexpected status code: %s", resp.Status)
	}
	return fmt.Errorf("unexpected status code: %s (body starts: %q)", resp.Status, limitBody)
}
