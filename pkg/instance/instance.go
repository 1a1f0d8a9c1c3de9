package instance

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

var (
	once     sync.Once
	instance string
)

// GetID returns the worker instance identifier used as the queue lease owner.
// WORKER_ID wins when set; otherwise the id is derived from the hostname plus a
// per-process suffix so two replicas on one host never share a lease owner.
func GetID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	once.Do(func() {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "worker"
		}
		instance = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	})
	return instance
}
