package engine

import "errors"

var errEmptyClaim = errors.New("engine: fact claim is empty")
