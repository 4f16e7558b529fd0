// Package service provides background service primitives.
package service

import (
	"github.com/oasisprotocol/block-orderer/common/logging"
)

// CleanupAble provides a Cleanup method.
type CleanupAble interface {
	// Cleanup performs the service specific post-termination cleanup.
	Cleanup()
}

// BackgroundService is a background service.
type BackgroundService interface {
	// Name returns the service name.
	Name() string

	// Start starts the service.
	Start() error

	// Stop halts the service.
	Stop()

	// Quit returns a channel that will be closed when the service terminates.
	Quit() <-chan struct{}

	CleanupAble
}

// BaseBackgroundService is a base implementation of BackgroundService.
//
// Its Stop marks the service terminated right away.  Services that need
// to wind down background workers first override Stop and mark
// termination via Terminate once the workers are done.
type BaseBackgroundService struct {
	name   string
	quitCh chan struct{}

	Logger *logging.Logger
}

// Name returns the service name.
func (b *BaseBackgroundService) Name() string {
	return b.name
}

// Start starts the service.
func (b *BaseBackgroundService) Start() error {
	return nil
}

// Stop halts the service.
func (b *BaseBackgroundService) Stop() {
	b.Terminate()
}

// Quit returns a channel that will be closed when the service terminates.
func (b *BaseBackgroundService) Quit() <-chan struct{} {
	return b.quitCh
}

// Cleanup performs the service specific post-termination cleanup.
func (b *BaseBackgroundService) Cleanup() {
	// Default implementation does nothing.
}

// Terminate closes the Quit channel, signalling service termination.
// Exactly one of Stop and Terminate closes it: services overriding Stop
// call Terminate once their background workers are done.
func (b *BaseBackgroundService) Terminate() {
	close(b.quitCh)
}

// NewBaseBackgroundService creates a new base background service
// implementation.
func NewBaseBackgroundService(name string) *BaseBackgroundService {
	return &BaseBackgroundService{
		name:   name,
		quitCh: make(chan struct{}),
		Logger: logging.GetLogger(name),
	}
}
