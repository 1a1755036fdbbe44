package fetcher

import "fmt"

// FetchError reports a failure to retrieve module source. Status is the
// final HTTP status, zero when the request never completed.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IntegrityError reports fetched bytes whose digest does not match the
// configured pin. The body is discarded before any analysis happens.
type IntegrityError struct {
	URL      string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity mismatch for %s: expected %s, got %s", e.URL, e.Expected, e.Actual)
}
