package resolver

import "embed"

// bundledDir holds the workflows compiled into the binary. They form
// the lowest precedence tier and can be shadowed by user or project
// files of the same name.
const bundledDir = "bundled"

//go:embed bundled/*.flow
var bundled embed.FS
