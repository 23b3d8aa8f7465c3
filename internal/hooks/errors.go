package hooks

import "errors"

var (
	// ErrSourceInvalid means the hooks URI could not be classified as an HTTP
	// endpoint, a JSON file, or a project descriptor directory.
	ErrSourceInvalid = errors.New("hooks: source URI not recognized as a valid url, folder or file")

	// ErrSourceUnreachable means fetching or reading the hooks source failed.
	ErrSourceUnreachable = errors.New("hooks: source unreachable")

	// ErrConfigMalformed means the hooks document does not match
	// {event_name: [{url, name?}, ...], ...}.
	ErrConfigMalformed = errors.New("hooks: malformed configuration document")

	// ErrRegistrationTooLate means AddHook was called after the first run
	// already started against the owning client.
	ErrRegistrationTooLate = errors.New("hooks: registration after first run started")

	// ErrDeliveryFailed marks a single webhook delivery failure. It never
	// propagates into run control flow.
	ErrDeliveryFailed = errors.New("hooks: delivery failed")
)
