package node

import (
	"github.com/go-kit/kit/metrics"

	"github.com/numbleroot/dotlist/crdt"
)

type metricsService struct {
	service Service
	updates metrics.Counter
	views   metrics.Counter
}

func NewMetricsService(s Service, updates metrics.Counter, views metrics.Counter) Service {
	return &metricsService{
		service: s,
		updates: updates,
		views:   views,
	}
}

func (s *metricsService) Run() error {
	return s.service.Run()
}

func (s *metricsService) Update(fn func(tx *crdt.Transaction)) error {

	err := s.service.Update(fn)

	if err == nil {
		s.updates.Add(1)
	}

	return err
}

func (s *metricsService) View(fn func(st *crdt.CausalDotStore)) error {

	err := s.service.View(fn)

	if err == nil {
		s.views.Add(1)
	}

	return err
}

func (s *metricsService) SetIsolated(isolated bool) error {
	return s.service.SetIsolated(isolated)
}

func (s *metricsService) Close() {
	s.service.Close()
}
