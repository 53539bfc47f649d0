package supervisor

import "github.com/leeroybrun/happy-stacks/internal/component"

// Service describes how one component runs under supervision.
type Service struct {
	Component   string
	Script      string // package.json script started long-running
	BasePort    int    // 0 = no port
	Buildable   bool
	BuildScript string
	ArtifactRel string // expected build output, relative to the op dir
}

// services is the stack's process set in start order: server first (the
// CLI and app talk to it), then the CLI daemon, then the app dev server.
var services = []Service{
	{
		Component: component.HappyServer,
		Script:    "dev",
		BasePort:  3005,
	},
	{
		Component:   component.HappyCLI,
		Script:      "dev",
		Buildable:   true,
		BuildScript: "build",
		ArtifactRel: "dist/index.mjs",
	},
	{
		Component: component.Happy,
		Script:    "start",
		BasePort:  8081,
	},
}

// serviceFor returns the service definition for a component name.
func serviceFor(name string) *Service {
	for i := range services {
		if services[i].Component == name {
			return &services[i]
		}
	}
	return nil
}

// Services returns the full process set in start order.
func Services() []Service {
	out := make([]Service, len(services))
	copy(out, services)
	return out
}
