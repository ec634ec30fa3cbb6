package transport

import (
	"fmt"

	"github.com/google/uuid"
)

// Service identity defaults shared by the phone app and the scale
// firmware.  Both sides must agree on the UUID or the client's lookup
// fails with a not-found error.
const (
	DefaultServiceName    = "DrinkSyncApp"
	DefaultServiceUUID    = "94f39d29-7d6d-437d-973b-fba39e49d4ee"
	DefaultRFCOMMChannel  = 1
	DefaultTCPBindAddress = ":7777"
)

// ServiceIdentity names the registration a listening session advertises.
type ServiceIdentity struct {
	Name string
	UUID uuid.UUID

	// Channel is the RFCOMM channel the service binds (1-30).
	Channel uint8
	// BindAddr is the listen address used by stream transports.
	BindAddr string
}

// DefaultService returns the identity used when nothing is configured.
func DefaultService() ServiceIdentity {
	return ServiceIdentity{
		Name:     DefaultServiceName,
		UUID:     uuid.MustParse(DefaultServiceUUID),
		Channel:  DefaultRFCOMMChannel,
		BindAddr: DefaultTCPBindAddress,
	}
}

// NewService builds an identity from a name and textual UUID, filling
// transport hints from the defaults.
func NewService(name, id string) (ServiceIdentity, error) {
	svc := DefaultService()
	if name != "" {
		svc.Name = name
	}
	if id != "" {
		u, err := uuid.Parse(id)
		if err != nil {
			return ServiceIdentity{}, fmt.Errorf("service uuid %q: %w", id, err)
		}
		svc.UUID = u
	}
	return svc, nil
}

func (s ServiceIdentity) String() string {
	return fmt.Sprintf("%s (%s)", s.Name, s.UUID)
}
