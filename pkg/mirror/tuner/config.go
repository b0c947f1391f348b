package tuner

// Worker configuration limits.
const (
	// maxWorkers caps the walk pool to avoid excessive context switching.
	maxWorkers = 32

	// minWorkers keeps some I/O parallelism even on single-core systems.
	minWorkers = 4

	// bytesPerWorker is the memory a worker may hold in flight: one read
	// chunk plus hashing state and the directory entries it is visiting.
	bytesPerWorker = 4 * 1024 * 1024
)

// OptimalConfig contains the tuned walk configuration.
type OptimalConfig struct {
	// Workers is the number of goroutines walking and fingerprinting.
	Workers int
}

// Calculate returns the optimal configuration for the given resources.
//
// Fingerprinting is read-bound, so the pool is twice the core count,
// clamped to [4, 32] and further limited so that the workers' combined
// buffers stay within the available memory.
func Calculate(resources SystemResources) OptimalConfig {
	workers := resources.CPUCores * 2
	workers = max(workers, minWorkers)
	workers = min(workers, maxWorkers)

	if resources.AvailableRAM > 0 {
		byMemory := int(resources.AvailableRAM / bytesPerWorker)
		workers = min(workers, max(byMemory, minWorkers))
	}

	return OptimalConfig{Workers: workers}
}

// CalculateWithOverrides applies a user override to the optimal config.
// If workerOverride is greater than 0 it replaces the calculated value,
// still respecting the maximum cap.
func CalculateWithOverrides(resources SystemResources, workerOverride int) OptimalConfig {
	config := Calculate(resources)

	if workerOverride > 0 {
		config.Workers = min(workerOverride, maxWorkers)
	}

	return config
}

// Workers detects the system resources and returns the worker count to
// use, honoring override when positive. Detection failures fall back to
// the CPU count alone.
func Workers(override int) int {
	resources, err := Detect()
	if err != nil {
		resources.AvailableRAM = 0
	}
	return CalculateWithOverrides(resources, override).Workers
}
