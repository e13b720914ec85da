package energy

import "errors"

var (
	// ErrNoDevice indicates the platform has no device backing a CPU.
	ErrNoDevice = errors.New("energy: no cpu device")

	// ErrNoOPPs indicates the device reported no usable operating points.
	ErrNoOPPs = errors.New("energy: no operating points")

	// ErrNoMaxFreq indicates the maximum frequency could not be resolved or was zero.
	ErrNoMaxFreq = errors.New("energy: no max frequency")

	// ErrOPPQuery indicates the lookup of one operating point failed.
	ErrOPPQuery = errors.New("energy: operating point query failed")

	// ErrZeroOPP indicates an operating point reported zero power or zero frequency.
	ErrZeroOPP = errors.New("energy: null power or frequency")

	// ErrSpan indicates the set of CPUs sharing a rail could not be determined
	// or does not partition the possible CPUs.
	ErrSpan = errors.New("energy: bad frequency domain span")

	// ErrAlloc indicates the allocator refused a reservation.
	ErrAlloc = errors.New("energy: allocation failed")

	// ErrNoCPUs indicates the topology reported no possible CPUs.
	ErrNoCPUs = errors.New("energy: no possible cpus")

	// ErrTooManyCPUs indicates the topology reported more possible cpus than
	// the model supports.
	ErrTooManyCPUs = errors.New("energy: too many possible cpus")

	// ErrAlreadyPublished is returned by Init once a model has been published.
	ErrAlreadyPublished = errors.New("energy: model already published")

	// ErrBuildInProgress is returned by Init while another Init is running.
	ErrBuildInProgress = errors.New("energy: build in progress")

	// ErrInitFailed wraps every fatal construction failure returned by Init.
	ErrInitFailed = errors.New("energy: initialization failed")
)
