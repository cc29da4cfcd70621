package mqtt

import (
	"bytes"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"

	"go.viam.com/dollygrip/transport"
)

// LifecycleHookOptions configures a LifecycleHook.
type LifecycleHookOptions struct {
	Lifecycle transport.Lifecycle
}

// LifecycleHook reports established and dropped client sessions.
type LifecycleHook struct {
	mochi.HookBase
	lifecycle transport.Lifecycle
}

// ID returns the ID of the hook.
func (h *LifecycleHook) ID() string {
	return "dolly-lifecycle"
}

// Provides indicates which methods a hook provides.
func (h *LifecycleHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mochi.OnSessionEstablished,
		mochi.OnDisconnect,
	}, []byte{b})
}

// Init reads the hook options.
func (h *LifecycleHook) Init(config any) error {
	opt, ok := config.(*LifecycleHookOptions)
	if !ok || opt.Lifecycle == nil {
		return mochi.ErrInvalidConfigType
	}
	h.lifecycle = opt.Lifecycle
	return nil
}

// OnSessionEstablished is called when a new client establishes a session (after OnConnect).
func (h *LifecycleHook) OnSessionEstablished(cl *mochi.Client, pk packets.Packet) {
	h.lifecycle.OnConnected(cl.ID)
}

// OnDisconnect is called when a client is disconnected for any reason.
func (h *LifecycleHook) OnDisconnect(cl *mochi.Client, err error, expire bool) {
	h.lifecycle.OnDisconnected(cl.ID)
}
