package build

// DeploymentType selects between production and development builds.
type DeploymentType byte

const (
	// Development builds log unit tests to stdout at LogLevel.
	Development DeploymentType = iota

	// Production builds only log through the configured backend.
	Production
)

var deploymentNames = map[DeploymentType]string{
	Development: "development",
	Production:  "production",
}

// String returns the name of the deployment.
func (b DeploymentType) String() string {
	if name, ok := deploymentNames[b]; ok {
		return name
	}

	return "unknown"
}
