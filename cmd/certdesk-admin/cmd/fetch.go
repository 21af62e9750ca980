package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/certdesk/admin-console/internal/adapter/outbound/adminapi"
	"github.com/certdesk/admin-console/internal/domain/navigation"
	"github.com/certdesk/admin-console/internal/domain/query"
	"github.com/certdesk/admin-console/internal/service"
)

var errLoginRequired = errors.New("login required")

// userError carries operator-facing text while keeping the cause for errors.Is.
type userError struct {
	msg string
	err error
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Unwrap() error { return e.err }

// explain turns err into operator-facing text. Validation errors already
// read well; API errors use the server's message when it is meant for people.
func explain(err error, fallback string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, service.ErrInvalidParams) || errors.Is(err, service.ErrInvalidCredentials) {
		return err
	}
	return &userError{msg: adminapi.UserMessage(err, fallback), err: err}
}

// requireView applies the route guard for a command that shows view.
func (a *app) requireView(view navigation.View) error {
	d := navigation.Guard(a.sessions.IsAuthenticated(), view)
	if d.Admit {
		return nil
	}
	return fmt.Errorf("%w: %s needs a session, run \"certdesk-admin login\" first", errLoginRequired, view.Title())
}

// errSessionEnded is returned when the session ends while a command waits
// for data, which resets the entry it was waiting on.
var errSessionEnded = &userError{
	msg: "your session has ended, run \"certdesk-admin login\" again",
	err: errLoginRequired,
}

// awaitData waits for sub's first settled result and releases it.
func awaitData[T any](ctx context.Context, sub *service.Subscription, fallback string) (T, error) {
	defer sub.Close()

	var zero T
	res, err := sub.WaitSettled(ctx)
	if err != nil {
		return zero, err
	}
	if errors.Is(res.Err, service.ErrCacheReset) {
		return zero, errSessionEnded
	}
	if res.Status == query.StatusError {
		return zero, explain(res.Err, fallback)
	}
	v, ok := query.Data[T](res)
	if !ok {
		return zero, fmt.Errorf("unexpected %T result for %s", res.Data, sub.Key())
	}
	return v, nil
}

// mutationError returns nil for a successful mutation.
func mutationError(res query.MutationResult, fallback string) error {
	if res.OK() {
		return nil
	}
	return explain(res.Err, fallback)
}

// prompt writes label and reads one line from the app's input.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("no input for %q", strings.TrimSpace(label))
	}
	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question; anything but y or yes is a no.
func (a *app) confirm(question string) bool {
	answer, err := a.prompt(question + " [y/N]: ")
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
