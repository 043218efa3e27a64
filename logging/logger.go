package logging

import "go.uber.org/zap"

// Named returns a child of the global sugared logger tagged with the component name
func Named(component string) *zap.SugaredLogger {
	return zap.S().Named(component)
}
