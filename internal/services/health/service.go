package health

// Service encapsulates health-related checks.
type Service struct {
	name    string
	version string
}

// NewService constructs a new health service.
func NewService(name, version string) *Service {
	return &Service{name: name, version: version}
}

// Status returns a simple health payload.
func (s *Service) Status() map[string]any {
	return map[string]any{
		"ok":      true,
		"service": s.name,
		"version": s.version,
	}
}
