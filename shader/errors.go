package shader

import "errors"

var (
	// ErrCompile is returned when the compiler rejects a shader.
	ErrCompile = errors.New("shader: compilation failed")

	// ErrUnsupportedStage is returned for stages the model or the compiler
	// cannot target.
	ErrUnsupportedStage = errors.New("shader: unsupported stage")

	// ErrEntryPoint is returned when the entry point is missing or has a
	// different stage than the key.
	ErrEntryPoint = errors.New("shader: entry point not found")

	// ErrInclude is returned when an include cannot be resolved.
	ErrInclude = errors.New("shader: include not found")

	// ErrPreprocess is returned for malformed directives.
	ErrPreprocess = errors.New("shader: preprocessor error")

	// ErrCacheFormat is returned when a cache file is truncated or corrupt.
	ErrCacheFormat = errors.New("shader: malformed cache file")

	// ErrNotInitialized is returned by a cache used before Initialize or
	// after Destroy.
	ErrNotInitialized = errors.New("shader: cache not initialized")

	// ErrReflection is returned when a vertex input cannot be expressed as
	// an input element.
	ErrReflection = errors.New("shader: input layout reflection failed")
)
