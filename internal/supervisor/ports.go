package supervisor

import (
	"fmt"
	"hash/fnv"
	"net"
	"time"
)

// portProbe is swapped in tests. Connect-refused means the port is free.
var portProbe = func(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 250*time.Millisecond)
	if err != nil {
		return true
	}
	conn.Close()
	return false
}

// PickPort probes from start upward and returns the first unbound port.
func PickPort(start int) (int, error) {
	for port := start; port < start+200; port++ {
		if portProbe(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free port found in [%d, %d)", start, start+200)
}

// StableStartPort derives a deterministic probe start from the stack name,
// so a stack keeps its ports across restarts.
func StableStartPort(stackName string, base int) int {
	h := fnv.New32a()
	h.Write([]byte(stackName))
	return base + int(h.Sum32()%1000)
}
