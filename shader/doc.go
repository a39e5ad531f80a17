// Package shader compiles shader variants and keeps them current.
//
// A variant is identified by a Key: source path, entry point, stage, shader
// model, macros and flags. Sources are preprocessed (#include, #define and
// conditional blocks), compiled by a Compiler (naga WGSL to SPIR-V by
// default) and stored in a disk cache named after the key hash. Each cache
// file holds the bytecode, its content hash and the include list, so a
// later run can decide freshness without recompiling.
//
// CheckIfShadersHaveChanged recompiles variants whose source or includes
// changed and notifies subscribers, which is how pipelines are rebuilt on
// hot reload.
package shader
