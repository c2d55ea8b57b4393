// Package system manages the lifecycle of long-running components: the
// registry refresher, the confirmation poller, the session janitor and the
// realtime bridge all run under the Manager.
package system

import "context"

// Service is a lifecycle-managed background component. Start must return
// promptly, leaving long work to goroutines; Stop must wait for them.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
