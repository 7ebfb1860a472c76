package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrWatchSetup     = errors.New("watch setup failed")
	ErrAlreadyStarted = errors.New("already started")
	ErrStopped        = errors.New("stopped")
	ErrSurfaceClosed  = errors.New("surface closed")
	ErrSurfaceBusy    = errors.New("surface queue full")
	ErrConfigUnusable = errors.New("config file unusable")
)
