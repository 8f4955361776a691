package handler

import (
	"github.com/hitoshi/eltiempo/internal/search"
)

// registrySource はsearch.RegistryをControllerSourceに適合させるアダプタ。
type registrySource struct {
	registry *search.Registry
}

// NewRegistrySource はsearch.RegistryをControllerSourceとして返す。
func NewRegistrySource(registry *search.Registry) ControllerSource {
	return &registrySource{registry: registry}
}

// ForSession はセッションIDに対応するControllerを返す。
func (s *registrySource) ForSession(sessionID string) FormController {
	return s.registry.Get(sessionID)
}
