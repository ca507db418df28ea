package readiness

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/missionctl/internal/bus"
)

var (
	ErrInvalidDescriptor   = errors.New("readiness: invalid interface descriptor")
	ErrDuplicateDescriptor = errors.New("readiness: interface descriptor already registered")
)

// BuildFunc materializes typed state on obj from a successful fetch.
type BuildFunc func(obj Object, props bus.Properties)

// MonitorFunc starts change monitoring for iface on obj. It runs at most once
// per interface per object, right after the first fetch is issued.
type MonitorFunc func(obj Object, iface string)

// InterfaceDescriptor describes one fetchable interface of an object type.
type InterfaceDescriptor struct {
	Name    string
	Build   BuildFunc
	Monitor MonitorFunc
}

// Descriptors maps object types to their interface descriptors. It is built
// once at process start and handed to the Broker.
type Descriptors struct {
	byType map[string]map[string]*InterfaceDescriptor
}

func NewDescriptors() *Descriptors {
	return &Descriptors{byType: make(map[string]map[string]*InterfaceDescriptor)}
}

// Add registers desc for objects of type typ.
func (d *Descriptors) Add(typ string, desc InterfaceDescriptor) error {
	typ = strings.TrimSpace(typ)
	if typ == "" || strings.TrimSpace(desc.Name) == "" {
		return fmt.Errorf("%w: type and interface name are required", ErrInvalidDescriptor)
	}
	if desc.Build == nil {
		return fmt.Errorf("%w: %s on %s has no builder", ErrInvalidDescriptor, desc.Name, typ)
	}
	ifaces, ok := d.byType[typ]
	if !ok {
		ifaces = make(map[string]*InterfaceDescriptor)
		d.byType[typ] = ifaces
	}
	if _, ok := ifaces[desc.Name]; ok {
		return fmt.Errorf("%w: %s on %s", ErrDuplicateDescriptor, desc.Name, typ)
	}
	stored := desc
	ifaces[desc.Name] = &stored
	return nil
}

// Lookup returns the descriptor for iface on typ.
func (d *Descriptors) Lookup(typ, iface string) (*InterfaceDescriptor, bool) {
	ifaces, ok := d.byType[typ]
	if !ok {
		return nil, false
	}
	desc, ok := ifaces[iface]
	return desc, ok
}
