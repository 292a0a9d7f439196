package instance

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// ID returns an identifier for this process, used to stamp outbox claims.
// Hostname plus a random suffix keeps two replicas on the same host from
// sharing an identity.
func ID(kind string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = kind
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
