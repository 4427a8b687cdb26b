package usecase

import (
	"context"
	"sync"

	"leadflow/internal/shared/logger"
)

// Observer is one live connection watching a project.
type Observer interface {
	// ID identifies the observer in logs.
	ID() string
	// Send delivers one event. An error means the observer is gone.
	Send(ctx context.Context, event interface{}) error
}

// Handshaker is implemented by observers that must greet their peer before
// they start receiving broadcasts.
type Handshaker interface {
	Handshake(ctx context.Context, projectID string) error
}

// RealtimeUsecase fans project-scoped events out to live observers.
type RealtimeUsecase interface {
	// Connect completes the observer's handshake and registers it for projectID.
	Connect(ctx context.Context, projectID string, observer Observer) error

	// Disconnect removes the observer. Removing an unknown observer is a no-op.
	Disconnect(ctx context.Context, projectID string, observer Observer)

	// Broadcast sends event once to every observer of projectID. Observers
	// whose send fails are dropped. Delivery failures are never returned.
	Broadcast(ctx context.Context, projectID string, event interface{})

	// ObserverCount returns the number of observers registered for projectID.
	ObserverCount(projectID string) int
}

type realtimeUsecaseImpl struct {
	// observers maps a project id to its observers in connection order.
	observers map[string][]Observer
	mu        sync.RWMutex
	log       logger.Logger
}

// NewRealtimeUsecase creates a new instance of RealtimeUsecase.
func NewRealtimeUsecase(log logger.Logger) RealtimeUsecase {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &realtimeUsecaseImpl{
		observers: make(map[string][]Observer),
		log:       log.WithComponent("realtime"),
	}
}

func (uc *realtimeUsecaseImpl) Connect(ctx context.Context, projectID string, observer Observer) error {
	if hs, ok := observer.(Handshaker); ok {
		if err := hs.Handshake(ctx, projectID); err != nil {
			uc.log.WithFields(map[string]interface{}{
				"project_id":  projectID,
				"observer_id": observer.ID(),
			}).Warnf("Observer handshake failed: %v", err)
			return err
		}
	}

	uc.mu.Lock()
	uc.observers[projectID] = append(uc.observers[projectID], observer)
	count := len(uc.observers[projectID])
	uc.mu.Unlock()

	uc.log.WithFields(map[string]interface{}{
		"project_id":  projectID,
		"observer_id": observer.ID(),
		"observers":   count,
	}).Info("Observer connected")
	return nil
}

func (uc *realtimeUsecaseImpl) Disconnect(ctx context.Context, projectID string, observer Observer) {
	if uc.remove(projectID, observer) {
		uc.log.WithFields(map[string]interface{}{
			"project_id":  projectID,
			"observer_id": observer.ID(),
		}).Info("Observer disconnected")
	}
}

// remove drops observer from projectID and reports whether it was registered.
func (uc *realtimeUsecaseImpl) remove(projectID string, observer Observer) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	list := uc.observers[projectID]
	for i, o := range list {
		if o != observer {
			continue
		}
		kept := make([]Observer, 0, len(list)-1)
		kept = append(kept, list[:i]...)
		kept = append(kept, list[i+1:]...)
		if len(kept) == 0 {
			delete(uc.observers, projectID)
		} else {
			uc.observers[projectID] = kept
		}
		return true
	}
	return false
}

func (uc *realtimeUsecaseImpl) Broadcast(ctx context.Context, projectID string, event interface{}) {
	uc.mu.RLock()
	snapshot := append([]Observer(nil), uc.observers[projectID]...)
	uc.mu.RUnlock()

	if len(snapshot) == 0 {
		uc.log.Debugf("No observers for project %s", projectID)
		return
	}

	delivered := 0
	for _, observer := range snapshot {
		if err := observer.Send(ctx, event); err != nil {
			uc.log.WithFields(map[string]interface{}{
				"project_id":  projectID,
				"observer_id": observer.ID(),
			}).Warnf("Dropping observer after failed send: %v", err)
			uc.remove(projectID, observer)
			continue
		}
		delivered++
	}

	uc.log.WithFields(map[string]interface{}{
		"project_id": projectID,
		"delivered":  delivered,
		"observers":  len(snapshot),
	}).Debug("Broadcast complete")
}

func (uc *realtimeUsecaseImpl) ObserverCount(projectID string) int {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return len(uc.observers[projectID])
}
