package grass

import "fmt"

// LoginError marks a credential or network rejection during authentication.
// Workers log it and terminate without touching their siblings.
type LoginError struct {
	Email  string
	Reason string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login failed for %s: %s", e.Email, e.Reason)
}

// RegistrationError marks a rejected registration call.
type RegistrationError struct {
	Email  string
	Reason string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration failed for %s: %s", e.Email, e.Reason)
}

// ErrServiceDown reports that the network answered with a 5xx / unavailable
// signal. The mining loop turns it into a cool-down pause instead of busy
// retrying.
var ErrServiceDown = fmt.Errorf("service unavailable")
