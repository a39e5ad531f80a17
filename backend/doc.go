// Package backend selects and opens graphics devices.
//
// Backends register themselves from init() functions and are opened by name
// or by priority:
//
//	import _ "github.com/gogpu/framegraph/backend/software"
//
//	dev, err := backend.OpenDefault(backend.Config{Width: 1280, Height: 720})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Destroy()
//
// The priority order is native (wgpu HAL) first, software last.
package backend
