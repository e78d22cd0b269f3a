package control

import (
	"crypto/sha256"
	"fmt"
	"net"
	"path/filepath"
)

// basePort is the offset added to the project-path-derived fold.
const basePort = 8547

// alternatePorts is tried, in order, before falling back to a sequential
// scan, when the primary deterministic port is already bound by another
// process (e.g. two schaltwerk processes racing to claim the same
// project on startup).
var alternatePorts = []int{18547, 28547, 38547, 48547}

// sequentialScanRange bounds the last-resort fallback: how many ports
// past the primary to probe before giving up.
const sequentialScanRange = 50

// DerivePort computes the project-deterministic loopback port for
// projectPath: SHA-256 of the absolute path, folding its first two
// bytes into a value mod 100, offset by basePort. Every process that
// points at the same project resolves to the same port, which is what
// lets an MCP bridge find the right server without being told the port
// out of band.
func DerivePort(projectPath string) (int, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return 0, fmt.Errorf("resolve project path %q: %w", projectPath, err)
	}
	sum := sha256.Sum256([]byte(abs))
	fold := int(sum[0])<<8 | int(sum[1])
	return basePort + fold%100, nil
}

// ResolveListener picks a free loopback port for projectPath: the
// deterministic primary port, then the fixed alternates, then a small
// sequential scan starting just past the primary. It returns the bound
// listener so the caller never has to re-resolve the same port under a
// race with another process.
func ResolveListener(projectPath string) (net.Listener, int, error) {
	primary, err := DerivePort(projectPath)
	if err != nil {
		return nil, 0, err
	}

	candidates := make([]int, 0, 1+len(alternatePorts)+sequentialScanRange)
	candidates = append(candidates, primary)
	candidates = append(candidates, alternatePorts...)
	for i := 1; i <= sequentialScanRange; i++ {
		candidates = append(candidates, primary+i)
	}

	var lastErr error
	for _, port := range candidates {
		addr := fmt.Sprintf("127.0.0.1:%d", port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		return ln, port, nil
	}
	return nil, 0, fmt.Errorf("no free loopback port found for project %q after %d attempts: %w", projectPath, len(candidates), lastErr)
}
