package validationx

import (
	"errors"
	"net/url"
	"regexp"
	"testing"

	"github.com/ARUMANDESU/validation"
)

var ErrInvalidRedirectURI = validation.NewError(
	"validation_is_redirect_uri",
	"must be an absolute http or https URL without a fragment",
)

var ErrInvalidClientID = validation.NewError(
	"validation_is_client_id",
	"must contain only printable characters without spaces",
)

var (
	AbsoluteURL = AbsoluteURLRule{}

	// ClientIDFormat accepts printable ASCII without whitespace. Lets Required handle emptiness.
	ClientIDFormat = validation.Match(clientIDRegex).ErrorObject(ErrInvalidClientID)
)

var clientIDRegex = regexp.MustCompile(`^[\x21-\x7e]+$`)

type AbsoluteURLRule struct{}

// Validate accepts absolute http(s) URLs with a host and no fragment.
func (r AbsoluteURLRule) Validate(value any) error {
	value, isNil := validation.Indirect(value)
	if isNil {
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return errors.New("value is not a string")
	}
	if s == "" {
		return nil // Let Required handle emptiness
	}

	u, err := url.Parse(s)
	if err != nil {
		return ErrInvalidRedirectURI
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidRedirectURI
	}
	if u.Host == "" || u.Fragment != "" || u.User != nil {
		return ErrInvalidRedirectURI
	}

	return nil
}

func AssertValidationErrors(t *testing.T, err error, expected error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %v, got nil", expected)
	}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected error to be of type validation.Errors, got %T: %v", err, err)
	}

	var expectedVerrs validation.Errors
	if !errors.As(expected, &expectedVerrs) {
		t.Fatalf("expected expected error to be of type validation.Errors, got %T: %v", expected, expected)
	}

	if len(verrs) != len(expectedVerrs) {
		t.Fatalf("expected number of validation errors to match, got %v and %v", verrs, expectedVerrs)
	}

	for field, expectedErr := range expectedVerrs {
		if actualErr, found := verrs[field]; !found {
			t.Errorf("field %s: expected error %v, got none", field, expectedErr)
		} else {
			AssertValidationError(t, actualErr, expectedErr)
		}
	}
}

func AssertValidationError(t *testing.T, err error, expected error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %v, got nil", expected)
	}

	var verr validation.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected error to be of type validation.Error, got %T: %v", err, err)
	}
	var expectedVerr validation.Error
	if !errors.As(expected, &expectedVerr) {
		t.Fatalf("expected expected error to be of type validation.Error, got %T: %v", expected, expected)
	}

	if verr.Code() != expectedVerr.Code() || verr.Message() != expectedVerr.Message() {
		t.Errorf("expected validation error to match, got %v and %v", verr, expectedVerr)
	}
}
