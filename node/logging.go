package node

import (
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/numbleroot/dotlist/crdt"
)

type loggingService struct {
	logger  log.Logger
	service Service
}

// NewLoggingService wraps a provided existing
// service with the provided logger.
func NewLoggingService(s Service, logger log.Logger) Service {
	return &loggingService{logger, s}
}

// Run wraps this service's Run method with
// added logging capabilities.
func (s *loggingService) Run() error {

	err := s.service.Run()
	if err != nil {

		level.Warn(s.logger).Log(
			"msg", "failed to run replication service",
			"err", err,
		)
	}

	return err
}

// Update wraps this service's Update method
// with added logging capabilities.
func (s *loggingService) Update(fn func(tx *crdt.Transaction)) error {

	err := s.service.Update(fn)

	logger := log.With(s.logger,
		"method", "UPDATE",
	)

	if err != nil {
		level.Info(logger).Log("msg", "failed to perform operation UPDATE correctly", "err", err)
	} else {
		level.Debug(logger).Log()
	}

	return err
}

// View wraps this service's View method
// with added logging capabilities.
func (s *loggingService) View(fn func(st *crdt.CausalDotStore)) error {

	err := s.service.View(fn)

	logger := log.With(s.logger,
		"method", "VIEW",
	)

	if err != nil {
		level.Info(logger).Log("msg", "failed to perform operation VIEW correctly", "err", err)
	} else {
		level.Debug(logger).Log()
	}

	return err
}

// SetIsolated wraps this service's SetIsolated
// method with added logging capabilities.
func (s *loggingService) SetIsolated(isolated bool) error {

	err := s.service.SetIsolated(isolated)

	logger := log.With(s.logger,
		"method", "SET_ISOLATED",
		"isolated", isolated,
	)

	if err != nil {
		level.Info(logger).Log("msg", "failed to perform operation SET_ISOLATED correctly", "err", err)
	} else {
		level.Debug(logger).Log()
	}

	return err
}

// Close wraps this service's Close method
// with added logging capabilities.
func (s *loggingService) Close() {

	s.service.Close()

	level.Info(s.logger).Log("msg", "replication service closed")
}
