package servicediscover

import (
	"context"
	"fmt"

	"github.com/brave-intl/bat-contribution-engine/pkg/config"

	"github.com/hashicorp/consul/api"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module registers this process with Consul on OnStart and deregisters it
// on OnStop. Skipped entirely when Consul.Addr is unset, so a single-binary
// or local run never depends on a running consul agent.
var Module = fx.Module("servicediscover",
	fx.Provide(NewRegistrar),
	fx.Invoke(registerConsul),
)

type Registrar struct {
	registry *ConsulRegistry
}

func NewRegistrar(cfg *config.Config) (*Registrar, error) {
	if cfg.Consul.Addr == "" {
		return &Registrar{}, nil
	}
	registry, err := NewConsulRegistry(cfg.Consul.Addr, cfg.AppName, cfg.AppName+"-"+cfg.AppNamespace, "127.0.0.1", 0)
	if err != nil {
		return nil, err
	}
	return &Registrar{registry: registry}, nil
}

func registerConsul(lc fx.Lifecycle, r *Registrar, logger *zap.Logger) {
	if r.registry == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := r.registry.Register(ctx); err != nil {
				logger.Error("failed to register service with consul", zap.Error(err))
				return err
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return r.registry.Deregister(ctx)
		},
	})
}

type ServiceRegistry interface {
	Register(ctx context.Context) error
	Deregister(ctx context.Context) error
}

type serviceRegistry struct {
	client *api.Client
}

func NewConfig(cfg *config.Config) *api.Config {
	config := api.DefaultConfig()
	config.Address = cfg.Consul.Addr

	return config
}

func NewClient(config *api.Config) (*api.Client, error) {
	return api.NewClient(config)
}

func NewRegistry(client *api.Client) ServiceRegistry {
	return &serviceRegistry{
		client: client,
	}
}

type ConsulRegistry struct {
	client    *api.Client
	serviceID string
	service   *api.AgentServiceRegistration
}

func NewConsulRegistry(address, serviceName, serviceID, host string, port int) (*ConsulRegistry, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	service := &api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    serviceName,
		Address: host,
		Port:    port,
		Check: &api.AgentServiceCheck{
			HTTP:     fmt.Sprintf("http://%s:%d/health/readiness", host, port),
			Interval: "10s",
			Timeout:  "5s",
		},
	}

	return &ConsulRegistry{
		client:    client,
		serviceID: serviceID,
		service:   service,
	}, nil
}

func (r *ConsulRegistry) Register(ctx context.Context) error {
	return r.client.Agent().ServiceRegister(r.service)
}

func (r *ConsulRegistry) Deregister(ctx context.Context) error {
	return r.client.Agent().ServiceDeregister(r.serviceID)
}
