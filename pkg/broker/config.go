package broker

// Config holds the base configuration for the broker layer.
// Each adapter has its own detailed configuration struct.
type Config struct {
	// Driver specifies which broker adapter to use.
	// Supported values: memory, kafka
	Driver string `env:"BROKER_DRIVER" env-default:"memory"`
}
