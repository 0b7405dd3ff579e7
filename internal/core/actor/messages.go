package actor

import (
	"github.com/berfenger/gridpoll2mqtt/internal/core/domain"
	"github.com/berfenger/gridpoll2mqtt/internal/core/integration"
)

const (
	INTEGRATION_STATE_SETTING_UP  = "setting_up"
	INTEGRATION_STATE_LOADED      = "loaded"
	INTEGRATION_STATE_SETUP_RETRY = "setup_retry"
	INTEGRATION_STATE_SETUP_ERROR = "setup_error"
)

type IntegrationStatus struct {
	Name         string                          `json:"name"`
	Title        string                          `json:"title"`
	Vendor       string                          `json:"vendor"`
	EntryId      string                          `json:"entry_id,omitempty"`
	State        string                          `json:"state"`
	Attempts     int                             `json:"attempts"`
	Error        string                          `json:"error,omitempty"`
	Coordinators []integration.CoordinatorStatus `json:"coordinators,omitempty"`
}

type GetIntegrationsRequest struct {
	domain.ActorRequestMixIn
}

type GetIntegrationsResponse struct {
	domain.ActorResponseMixIn
	Integrations []IntegrationStatus
}

type GetIntegrationRequest struct {
	domain.ActorRequestMixIn
	Name string
}

// GetIntegrationResponse carries the live integration once it is loaded.
type GetIntegrationResponse struct {
	domain.ActorResponseMixIn
	Status      IntegrationStatus
	Integration *integration.Integration
}

type RefreshIntegrationRequest struct {
	domain.ActorRequestMixIn
	Name string
}

type RefreshIntegrationResponse struct {
	domain.ActorResponseMixIn
}

// IntegrationLoaded announces a set up integration to HA discovery.
type IntegrationLoaded struct {
	Integration *integration.Integration
}

type setupResult struct {
	name        string
	integration *integration.Integration
	err         error
}

type retrySetup struct {
	name string
}

type republishDiscovery struct{}
