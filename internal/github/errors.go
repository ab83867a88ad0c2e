package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v68/github"

	"github.com/jacobcy/VibeCopilot-sub000/internal/syncerr"
)

// FieldError is one entry of a REST validation error's "errors" array.
type FieldError struct {
	Resource string `json:"resource"`
	Field    string `json:"field"`
	Code     string `json:"code"`
	Message  string `json:"message,omitempty"`
}

// GraphQLError is one entry of a GraphQL response's "errors" array.
type GraphQLError struct {
	Type    string        `json:"type,omitempty"`
	Message string        `json:"message"`
	Path    []interface{} `json:"path,omitempty"`
}

// APIError is a non-success GitHub response, classified once at decode time.
type APIError struct {
	StatusCode int
	Kind       syncerr.Kind
	Message    string
	Errors     []FieldError
	GraphQL    []GraphQLError
}

func (e *APIError) Error() string {
	var b strings.Builder
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, "github: status %d", e.StatusCode)
	} else {
		b.WriteString("github")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for _, fe := range e.Errors {
		fmt.Fprintf(&b, " [%s.%s %s]", fe.Resource, fe.Field, fe.Code)
	}
	for _, ge := range e.GraphQL {
		if ge.Type != "" {
			fmt.Fprintf(&b, " [%s: %s]", ge.Type, ge.Message)
		} else {
			fmt.Fprintf(&b, " [%s]", ge.Message)
		}
	}
	return b.String()
}

// ErrorKind implements syncerr.Classified.
func (e *APIError) ErrorKind() syncerr.Kind { return e.Kind }

// IsNotFound reports whether err is a GitHub not-found response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == syncerr.KindNotFound
}

// IsConflict reports whether err is a GitHub "already exists" response.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == syncerr.KindConflict
}

// restErrorBody is the JSON shape of a REST error response.
type restErrorBody struct {
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors"`
}

// newAPIError decodes a REST error body and classifies it.
func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var decoded restErrorBody
	if err := json.Unmarshal(body, &decoded); err == nil {
		apiErr.Message = decoded.Message
		apiErr.Errors = decoded.Errors
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	apiErr.Kind = classifyREST(status, apiErr.Message, apiErr.Errors)
	return apiErr
}

func classifyREST(status int, message string, fieldErrs []FieldError) syncerr.Kind {
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return syncerr.KindNotFound
	case status == http.StatusConflict:
		return syncerr.KindConflict
	case status == http.StatusUnprocessableEntity:
		for _, fe := range fieldErrs {
			if fe.Code == "already_exists" {
				return syncerr.KindConflict
			}
		}
		if strings.Contains(strings.ToLower(message), "already exists") {
			return syncerr.KindConflict
		}
		return syncerr.KindFatal
	case status == http.StatusTooManyRequests || status >= 500:
		return syncerr.KindTransient
	default:
		return syncerr.KindFatal
	}
}

// newGraphQLError classifies the "errors" array of a GraphQL response.
func newGraphQLError(errs []GraphQLError) *APIError {
	apiErr := &APIError{GraphQL: errs, Kind: syncerr.KindFatal}
	if len(errs) > 0 {
		apiErr.Message = errs[0].Message
	}
	for _, e := range errs {
		msg := strings.ToLower(e.Message)
		switch {
		case e.Type == "NOT_FOUND" || strings.HasPrefix(msg, "could not resolve to"):
			apiErr.Kind = syncerr.KindNotFound
			return apiErr
		case strings.Contains(msg, "already exists") || strings.Contains(msg, "name has already been taken"):
			apiErr.Kind = syncerr.KindConflict
			return apiErr
		case e.Type == "RATE_LIMITED" || e.Type == "SERVICE_UNAVAILABLE":
			apiErr.Kind = syncerr.KindTransient
		}
	}
	return apiErr
}

// wrapGoGitHubError converts go-github errors into *APIError. Other errors
// (network failures, context cancellation) pass through unchanged so that
// syncerr.Classify can still see them.
func wrapGoGitHubError(err error) error {
	if err == nil {
		return nil
	}
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return &APIError{StatusCode: statusOf(rateErr.Response), Kind: syncerr.KindTransient, Message: rateErr.Message}
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &APIError{StatusCode: statusOf(abuseErr.Response), Kind: syncerr.KindTransient, Message: abuseErr.Message}
	}
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) {
		apiErr := &APIError{StatusCode: statusOf(respErr.Response), Message: respErr.Message}
		for _, e := range respErr.Errors {
			apiErr.Errors = append(apiErr.Errors, FieldError{
				Resource: e.Resource,
				Field:    e.Field,
				Code:     e.Code,
				Message:  e.Message,
			})
		}
		apiErr.Kind = classifyREST(apiErr.StatusCode, apiErr.Message, apiErr.Errors)
		return apiErr
	}
	return err
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
