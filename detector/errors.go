package detector

import "errors"

// All detection errors are terminal for the run. A financial calculation is
// never degraded to a partial result on bad input.
var (
	// ErrInvalidObservation marks a non-positive price, a missing timestamp
	// or an unrecognized exchange inside the input series.
	ErrInvalidObservation = errors.New("invalid observation")

	// ErrUnknownExchange marks a fee lookup for an exchange absent from the
	// configured fee schedule.
	ErrUnknownExchange = errors.New("unknown exchange")

	// ErrInvalidParameter marks a run parameter outside its documented range.
	ErrInvalidParameter = errors.New("invalid parameter")
)
