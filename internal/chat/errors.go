package chat

import "fmt"

// UnauthorizedError reports a 403 from a vendor API, carrying the
// vendor's own explanation when one could be decoded.
type UnauthorizedError struct {
	Vendor  string
	Message string
}

// Error implements the error interface.
func (e *UnauthorizedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: unauthorized", e.Vendor)
	}
	return fmt.Sprintf("%s: unauthorized: %s", e.Vendor, e.Message)
}

// HTTPError reports a non-200 response from a vendor API.
type HTTPError struct {
	Vendor     string
	StatusCode int
	Message    string
	Body       []byte
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Vendor, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Vendor, e.StatusCode, e.Message)
}

// VendorError is an error payload delivered inside an otherwise
// successful response stream.
type VendorError struct {
	Vendor  string
	Message string
}

// Error implements the error interface.
func (e *VendorError) Error() string {
	return fmt.Sprintf("%s: %s", e.Vendor, e.Message)
}
