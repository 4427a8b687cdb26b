package di

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"leadflow/internal/leadflow"
	"leadflow/internal/leadflow/config"
	"leadflow/internal/shared/logger"
)

const closeTimeout = 30 * time.Second

// Container represents a dependency injection container with proper lifecycle management
type Container struct {
	mu       sync.RWMutex
	services map[reflect.Type]interface{}
	// Module instances
	LeadflowModule *leadflow.LeadflowModule
	// Configuration
	LeadflowConfig *config.LeadflowConfig
	// Logger
	Logger logger.Logger
}

// NewContainer creates a new DI container. A nil log means a no-op logger.
func NewContainer(log logger.Logger) *Container {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Container{
		services: make(map[reflect.Type]interface{}),
		Logger:   log,
	}
}

// InitializeLeadflow builds the Leadflow module. The store probe and journal
// connection happen here.
func (c *Container) InitializeLeadflow(ctx context.Context, cfg *config.LeadflowConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.LeadflowModule != nil {
		return fmt.Errorf("leadflow module already initialized")
	}

	module, err := leadflow.NewLeadflowModule(ctx, cfg, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to create leadflow module: %w", err)
	}

	c.LeadflowModule = module
	c.LeadflowConfig = module.Config
	c.services[reflect.TypeOf(module).Elem()] = module
	return nil
}

// Register registers a service instance
func (c *Container) Register(service interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	serviceType := reflect.TypeOf(service)
	if serviceType.Kind() == reflect.Ptr {
		serviceType = serviceType.Elem()
	}
	c.services[serviceType] = service
}

// Resolve resolves a service by type
func (c *Container) Resolve(serviceType reflect.Type) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if serviceType.Kind() == reflect.Ptr {
		serviceType = serviceType.Elem()
	}
	if service, exists := c.services[serviceType]; exists {
		return service, nil
	}
	return nil, fmt.Errorf("service of type %v not registered", serviceType)
}

// GetService is a generic helper for resolving services
func GetService[T any](c *Container) (T, error) {
	var zero T
	service, err := c.Resolve(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return zero, err
	}
	if typed, ok := service.(T); ok {
		return typed, nil
	}
	return zero, fmt.Errorf("service is not of expected type %T", zero)
}

// HealthCheck performs health check on all registered services
func (c *Container) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.LeadflowModule == nil {
		return fmt.Errorf("leadflow module not initialized")
	}
	return c.LeadflowModule.HealthCheck(ctx)
}

// Cleanup stops the modules, then any registered service with a Cleanup method.
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	if c.LeadflowModule != nil {
		if err := c.LeadflowModule.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
		delete(c.services, reflect.TypeOf(c.LeadflowModule).Elem())
		c.LeadflowModule = nil
	}

	for _, service := range c.services {
		if cleaner, ok := service.(interface{ Cleanup(context.Context) error }); ok {
			if err := cleaner.Cleanup(ctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to cleanup service: %w", err))
			}
		}
	}
	c.services = make(map[reflect.Type]interface{})

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// Close gracefully shuts down all services in the container with timeout
func (c *Container) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := c.Cleanup(ctx); err != nil {
		c.Logger.Warnf("Cleanup errors occurred: %v", err)
		return err
	}
	c.Logger.Info("DI container resources closed")
	return nil
}
