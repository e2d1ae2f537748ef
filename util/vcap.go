package util

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// VCAP_SERVICES is the Cloud Foundry service binding variable
const VCAP_SERVICES = "VCAP_SERVICES"

// VcapServices maps a service label to the instances bound under it
type VcapServices map[string][]VcapService

// VcapService is one bound service instance; only the fields used here are parsed
type VcapService struct {
	Name        string          `json:"name"`
	Label       string          `json:"label"`
	Credentials VcapCredentials `json:"credentials"`
}

// VcapCredentials is the free-form credentials block of a service binding
type VcapCredentials map[string]interface{}

// ParseVcapServices decodes raw VCAP_SERVICES JSON
func ParseVcapServices(data []byte) (VcapServices, error) {
	services := VcapServices{}
	if err := json.Unmarshal(data, &services); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", VCAP_SERVICES, err)
	}
	return services, nil
}

// VcapServicesFromEnv parses VCAP_SERVICES from the environment
func VcapServicesFromEnv() (VcapServices, error) {
	raw, ok := os.LookupEnv(VCAP_SERVICES)
	if !ok || raw == "" {
		return nil, fmt.Errorf("%s is not set", VCAP_SERVICES)
	}
	return ParseVcapServices([]byte(raw))
}

// FindServiceByName returns the bound instance with the given name, whatever its label
func (s VcapServices) FindServiceByName(name string) *VcapService {
	for _, instances := range s {
		for i := range instances {
			if instances[i].Name == name {
				return &instances[i]
			}
		}
	}
	return nil
}

// ServiceNames lists every bound instance name, sorted
func (s VcapServices) ServiceNames() []string {
	names := []string{}
	for _, instances := range s {
		for _, instance := range instances {
			names = append(names, instance.Name)
		}
	}
	sort.Strings(names)
	return names
}

// String returns the credential at key, which must be a string
func (c VcapCredentials) String(key string) (string, error) {
	val, ok := c[key]
	if !ok {
		return "", fmt.Errorf("credential key does not exist: %s", key)
	}
	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("credential %s is not a string: %v", key, val)
	}
	return str, nil
}
