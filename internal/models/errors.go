package models

import "errors"

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrRoundOver            = errors.New("round is already over")
	ErrRoundInProgress      = errors.New("round is still in progress")
	ErrGameOver             = errors.New("game is over")
	ErrDuplicateGuess       = errors.New("same location as the previous guess")
	ErrEmptyGuess           = errors.New("guess cannot be empty")
	ErrInvalidCoordinates   = errors.New("coordinates out of range")
	ErrHelpUnavailable      = errors.New("help circle is not available")
)
