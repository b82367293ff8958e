//go:build production

package kernel

// DevBuild is true outside production builds. It gates dropped-path logging
// and the index consistency guard.
const DevBuild = false
