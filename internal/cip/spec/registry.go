package spec

import (
	"fmt"
	"sync"

	"github.com/tturner/enipcore/internal/cip/protocol"
)

// ServiceDef describes a CIP service and the shape of its request.
type ServiceDef struct {
	ClassID           uint16
	Service           protocol.CIPServiceCode
	Name              string
	RequiresInstance  bool
	RequiresAttribute bool
	MinRequestLen     int
	MinResponseLen    int
	StrictRules       []Rule
}

type serviceKey struct {
	classID uint16
	service uint8
}

// Registry holds service definitions keyed by class and service code.
type Registry struct {
	services map[serviceKey]ServiceDef
}

// NewRegistry returns an empty service registry.
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[serviceKey]ServiceDef),
	}
}

// RegisterService registers a service definition.
func (r *Registry) RegisterService(def ServiceDef) {
	key := serviceKey{classID: def.ClassID, service: uint8(def.Service.Request())}
	r.services[key] = def
}

// LookupService finds a matching service definition, falling back to class-agnostic entries.
func (r *Registry) LookupService(classID uint16, service protocol.CIPServiceCode) (ServiceDef, bool) {
	key := serviceKey{classID: classID, service: uint8(service.Request())}
	if def, ok := r.services[key]; ok {
		return def, true
	}
	key.classID = 0
	def, ok := r.services[key]
	return def, ok
}

// ValidateRequest checks a request against its definition. Unknown services
// pass: the target is the authority on what it implements.
func (r *Registry) ValidateRequest(path protocol.CIPPath, service protocol.CIPServiceCode, data []byte) error {
	def, ok := r.LookupService(path.Class, service)
	if !ok {
		return nil
	}
	if def.RequiresAttribute && !path.HasAttribute {
		return fmt.Errorf("%s requires an attribute ID", def.Name)
	}
	if len(data) < def.MinRequestLen {
		return fmt.Errorf("%s needs at least %d request bytes, have %d", def.Name, def.MinRequestLen, len(data))
	}
	for _, rule := range def.StrictRules {
		if err := rule.CheckRequest(data); err != nil {
			return fmt.Errorf("%s: %s: %w", def.Name, rule.Name(), err)
		}
	}
	return nil
}

// ValidateResponse applies the definition's response rules to a reply body.
func (r *Registry) ValidateResponse(classID uint16, service protocol.CIPServiceCode, data []byte) error {
	def, ok := r.LookupService(classID, service)
	if !ok {
		return nil
	}
	if len(data) < def.MinResponseLen {
		return fmt.Errorf("%s reply needs at least %d bytes, have %d", def.Name, def.MinResponseLen, len(data))
	}
	for _, rule := range def.StrictRules {
		if err := rule.CheckResponse(data); err != nil {
			return fmt.Errorf("%s reply: %s: %w", def.Name, rule.Name(), err)
		}
	}
	return nil
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the shared CIP service registry.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		registry := NewRegistry()
		for code, name := range cipServiceNames {
			registry.RegisterService(ServiceDef{Service: protocol.CIPServiceCode(code), Name: name})
		}
		registerDefaultServices(registry)
		defaultRegistry = registry
	})
	return defaultRegistry
}

func registerDefaultServices(registry *Registry) {
	generic := func(code protocol.CIPServiceCode, requiresAttribute bool, minReq int) {
		registry.RegisterService(ServiceDef{
			Service:           code,
			Name:              ServiceName(code),
			RequiresInstance:  true,
			RequiresAttribute: requiresAttribute,
			MinRequestLen:     minReq,
		})
	}
	generic(CIPServiceGetAttributeAll, false, 0)
	generic(CIPServiceSetAttributeAll, false, 1)
	generic(CIPServiceGetAttributeList, false, 2)
	generic(CIPServiceSetAttributeList, false, 2)
	generic(CIPServiceGetAttributeSingle, true, 0)
	generic(CIPServiceSetAttributeSingle, true, 1)
	generic(CIPServiceGetMember, true, 0)
	generic(CIPServiceSetMember, true, 1)

	registry.RegisterService(ServiceDef{
		ClassID:          CIPClassMessageRouter,
		Service:          CIPServiceMultipleService,
		Name:             ServiceName(CIPServiceMultipleService),
		RequiresInstance: true,
		MinRequestLen:    4,
		StrictRules:      []Rule{MultipleServiceRule{}},
	})
	registry.RegisterService(ServiceDef{
		ClassID:          CIPClassConnectionManager,
		Service:          CIPServiceUnconnectedSend,
		Name:             ServiceName(CIPServiceUnconnectedSend),
		RequiresInstance: true,
		MinRequestLen:    10,
		StrictRules:      []Rule{UnconnectedSendRule{}},
	})
	registry.RegisterService(ServiceDef{
		ClassID:          CIPClassConnectionManager,
		Service:          CIPServiceForwardOpen,
		Name:             ServiceName(CIPServiceForwardOpen),
		RequiresInstance: true,
		MinRequestLen:    20,
		MinResponseLen:   17,
	})
	registry.RegisterService(ServiceDef{
		ClassID:          CIPClassConnectionManager,
		Service:          CIPServiceForwardClose,
		Name:             "Forward_Close",
		RequiresInstance: true,
		MinRequestLen:    10,
		MinResponseLen:   10,
	})
}
