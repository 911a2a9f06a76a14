//go:build !conformance

package conformance

import "github.com/modelcontextprotocol/go-sdk/mcp"

// Register does nothing in regular builds; the conformance build tag
// swaps in the fixture set.
func Register(_ *mcp.Server) {}
